package main

import (
	"fmt"

	"github.com/soundbay/backend/internal/database"
	"github.com/soundbay/backend/internal/seed"
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Initialize(a.cfg.Database, false); err != nil {
				return err
			}
			defer database.Close()

			if err := database.Migrate(database.DB); err != nil {
				return err
			}
			return a.print(map[string]string{"status": "ok", "driver": a.cfg.Database.Driver},
				"Migrations applied (%s).", a.cfg.Database.Driver)
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var (
		testData bool
		clean    bool
		counts   = seed.DevCounts
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with generated development data",
		Long: `Seed generates users, tracks, follows, likes, reposts, comments, playlists and
plays. Every seeded account uses the password "` + seed.DefaultPassword + `".

  soundbay seed           random dev data
  soundbay seed --test    fixed accounts (alice is an admin) for integration tests
  soundbay seed --clean   remove everything seed created`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if testData && clean {
				return fmt.Errorf("--test and --clean are mutually exclusive")
			}
			ctx := cmd.Context()
			if err := database.Initialize(a.cfg.Database, false); err != nil {
				return err
			}
			defer database.Close()
			if err := database.Migrate(database.DB); err != nil {
				return err
			}

			s := seed.NewSeeder(database.DB)
			switch {
			case clean:
				if err := s.Clean(ctx); err != nil {
					return err
				}
				return a.print(map[string]string{"status": "cleaned"}, "Seed data removed.")
			case testData:
				users, err := s.SeedTest(ctx)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return a.printJSON(users)
				}
				rows := make([][]string, len(users))
				for i, u := range users {
					rows[i] = []string{u.Username, u.Email, yesNo(u.IsAdmin)}
				}
				return a.printTable(users, []string{"Username", "Email", "Admin"}, rows, nil)
			default:
				if err := s.SeedDev(ctx, counts); err != nil {
					return err
				}
				return a.print(counts, "Seeded %d users and %d tracks. Run `soundbay search reindex` if search is enabled.",
					counts.Users, counts.Tracks)
			}
		},
	}
	cmd.Flags().BoolVar(&testData, "test", false, "Create the fixed test accounts instead of random data")
	cmd.Flags().BoolVar(&clean, "clean", false, "Delete seeded data")
	cmd.Flags().IntVar(&counts.Users, "users", counts.Users, "Number of users to generate")
	cmd.Flags().IntVar(&counts.Tracks, "tracks", counts.Tracks, "Number of tracks to generate")
	return cmd
}
