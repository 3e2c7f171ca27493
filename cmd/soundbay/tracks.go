package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/soundbay/backend/internal/models"
	"github.com/soundbay/backend/internal/queue"
	"github.com/soundbay/backend/internal/repository"
	"github.com/spf13/cobra"
)

func newTracksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracks",
		Short: "Inspect and moderate tracks",
	}
	cmd.AddCommand(newTracksListCmd(a), newTracksApproveCmd(a), newTracksRejectCmd(a), newTracksRetranscodeCmd(a))
	return cmd
}

func newTracksListCmd(a *app) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracks by moderation status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := models.TrackStatus(status)
			switch s {
			case models.TrackPending, models.TrackApproved, models.TrackRejected:
			default:
				return fmt.Errorf("unknown status %q (pending, approved or rejected)", status)
			}

			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			tracks, total, err := k.Repos().Tracks.ListByStatus(ctx, s, repository.Page{Limit: limit})
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(map[string]interface{}{"tracks": tracks, "total": total})
			}

			rows := make([][]string, len(tracks))
			for i, t := range tracks {
				artist := t.UserID
				if t.User != nil {
					artist = t.User.Username
				}
				rows[i] = []string{
					t.ID,
					t.Title,
					artist,
					string(t.ProcessingStatus),
					formatDuration(t.DurationSeconds),
					strconv.Itoa(t.PlayCount),
					formatTime(t.CreatedAt),
				}
			}
			return a.printTable(tracks,
				[]string{"ID", "Title", "Artist", "Processing", "Length", "Plays", "Uploaded"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(models.TrackPending), "pending, approved or rejected")
	cmd.Flags().IntVar(&limit, "limit", repository.MaxLimit, "Maximum rows")
	return cmd
}

// moderator resolves --as to a user ID; empty leaves the decision unattributed
func (a *app) moderator(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", nil
	}
	k, err := a.kernel(ctx)
	if err != nil {
		return "", err
	}
	user, err := lookupUser(ctx, k, username)
	if err != nil {
		return "", err
	}
	if !user.IsAdmin {
		return "", fmt.Errorf("%s is not an admin", user.Username)
	}
	return user.ID, nil
}

func newTracksApproveCmd(a *app) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "approve <track-id>",
		Short: "Approve a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			moderatorID, err := a.moderator(ctx, as)
			if err != nil {
				return err
			}
			decision, err := k.Moderation().Approve(ctx, args[0], moderatorID)
			if err != nil {
				return err
			}
			return a.print(decision, "Approved %q (was %s).", decision.Track.Title, decision.Previous)
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "Admin username to record as the moderator")
	return cmd
}

func newTracksRejectCmd(a *app) *cobra.Command {
	var as, reason string
	cmd := &cobra.Command{
		Use:   "reject <track-id>",
		Short: "Reject a track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			moderatorID, err := a.moderator(ctx, as)
			if err != nil {
				return err
			}
			decision, err := k.Moderation().Reject(ctx, args[0], reason, moderatorID)
			if err != nil {
				return err
			}
			return a.print(decision, "Rejected %q (was %s): %s",
				decision.Track.Title, decision.Previous, decision.Track.RejectionReason)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to the uploader (required)")
	cmd.Flags().StringVar(&as, "as", "", "Admin username to record as the moderator")
	return cmd
}

func newTracksRetranscodeCmd(a *app) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "retranscode <track-id>",
		Short: "Transcode a track again from its retained original",
		Long: `Retranscode runs the job in this process and waits for it. With --wait=false
the track is only marked queued; a running server picks it up on its next start.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			k, err := a.kernel(ctx)
			if err != nil {
				return err
			}
			q := k.Queue()
			if !wait {
				// the job only lives in this process; the queued status is what the server resumes
				job, err := q.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				return a.print(job, "Track %s marked for transcoding.", job.TrackID)
			}

			q.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = q.Stop(stopCtx)
			}()

			job, err := q.Requeue(ctx, args[0])
			if err != nil {
				return err
			}
			done, err := q.WaitForJob(job.ID, a.cfg.Audio.Timeout+time.Minute)
			if err != nil {
				return err
			}
			if done.Status == queue.JobFailed {
				return fmt.Errorf("transcode failed: %s", done.Error)
			}
			return a.print(done, "Transcoded %s (%s).", done.TrackID, elapsed(done))
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", true, "Run the transcode here and wait for it")
	return cmd
}

func elapsed(job queue.Job) string {
	if job.StartedAt == nil || job.CompletedAt == nil {
		return "-"
	}
	return job.CompletedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()
}
