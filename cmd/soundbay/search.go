package main

import (
	"errors"

	"github.com/soundbay/backend/internal/search"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Manage the search index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			stats, err := k.Search().Reindex(ctx)
			if errors.Is(err, search.ErrUnavailable) {
				return errors.New("search is not configured (set ELASTICSEARCH_URL)")
			}
			if err != nil {
				return err
			}
			return a.print(stats, "Indexed %d tracks and %d users.", stats.Tracks, stats.Users)
		},
	})
	return cmd
}
