package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/soundbay/backend/internal/kernel"
	"github.com/soundbay/backend/internal/logger"
	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAdminCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Grant or revoke the admin role",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "promote <username>",
		Short: "Make a user an admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setAdmin(cmd.Context(), args[0], true)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <username>",
		Short: "Remove a user's admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setAdmin(cmd.Context(), args[0], false)
		},
	})
	return cmd
}

func (a *app) setAdmin(ctx context.Context, username string, admin bool) error {
	k, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, k, username)
	if err != nil {
		return err
	}
	if err := k.Repos().Users.SetAdmin(ctx, user.ID, admin); err != nil {
		return err
	}
	user.IsAdmin = admin
	logger.Log.Info("User admin role changed from CLI", logger.WithUserID(user.ID), zap.Bool("is_admin", admin))

	if admin {
		return a.print(user, "%s is now an admin.", user.Username)
	}
	return a.print(user, "%s is no longer an admin.", user.Username)
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List and moderate accounts",
	}

	var (
		query  string
		banned bool
		limit  int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			filter := repository.UserFilter{Query: query}
			if cmd.Flags().Changed("banned") {
				filter.Banned = &banned
			}
			users, total, err := k.Repos().Users.List(ctx, filter, repository.Page{Limit: limit})
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]interface{}{"users": users, "total": total})
			}
			rows := make([][]string, len(users))
			for i, u := range users {
				rows[i] = []string{
					u.Username,
					u.Email,
					strconv.Itoa(u.TrackCount),
					strconv.Itoa(u.FollowerCount),
					yesNo(u.IsAdmin),
					yesNo(u.IsBanned),
					formatTime(u.CreatedAt),
				}
			}
			return a.printTable(users,
				[]string{"Username", "Email", "Tracks", "Followers", "Admin", "Banned", "Joined"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight})
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "Filter by username or email")
	list.Flags().BoolVar(&banned, "banned", false, "Only banned (or, with =false, only active) accounts")
	list.Flags().IntVar(&limit, "limit", repository.MaxLimit, "Maximum rows")

	var reason string
	ban := &cobra.Command{
		Use:   "ban <username>",
		Short: "Ban an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setBanned(cmd.Context(), args[0], true, reason)
		},
	}
	ban.Flags().StringVar(&reason, "reason", "", "Reason recorded on the account")

	unban := &cobra.Command{
		Use:   "unban <username>",
		Short: "Lift a ban",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setBanned(cmd.Context(), args[0], false, "")
		},
	}

	cmd.AddCommand(list, ban, unban)
	return cmd
}

func (a *app) setBanned(ctx context.Context, username string, banned bool, reason string) error {
	k, err := a.kernel(ctx)
	if err != nil {
		return err
	}
	user, err := lookupUser(ctx, k, username)
	if err != nil {
		return err
	}
	if err := k.Repos().Users.SetBanned(ctx, user.ID, banned, strings.TrimSpace(reason)); err != nil {
		return err
	}
	if user, err = k.Repos().Users.Get(ctx, user.ID); err != nil {
		return err
	}
	if err := k.Search().SyncUser(ctx, user); err != nil {
		logger.Log.Warn("Failed to sync user to search index", logger.WithUserID(user.ID), zap.Error(err))
	}

	if banned {
		return a.print(user, "%s is banned.", user.Username)
	}
	return a.print(user, "%s is no longer banned.", user.Username)
}

func lookupUser(ctx context.Context, k *kernel.Kernel, username string) (*models.User, error) {
	user, err := k.Repos().Users.GetByUsername(ctx, strings.TrimPrefix(username, "@"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", username, err)
	}
	return user, nil
}
