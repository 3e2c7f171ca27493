package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/soundbay/backend/internal/config"
	"github.com/soundbay/backend/internal/kernel"
	"github.com/soundbay/backend/internal/logger"
	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// app carries state shared by every subcommand
type app struct {
	out    io.Writer
	output string

	cfg *config.Config
	k   *kernel.Kernel
}

func newApp(out io.Writer) *app {
	return &app{out: out, output: outputText}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "soundbay",
		Short: "Soundbay admin CLI",
		Long: `Soundbay CLI operates directly on the configured database and services.
It reads the same environment as the server (.env is loaded if present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.output = strings.ToLower(a.output)
			if a.output != outputText && a.output != outputJSON {
				return fmt.Errorf("unknown output format %q (use text or json)", a.output)
			}
			if a.cfg != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			// keep command output readable unless debug logging is asked for
			level := cfg.Log.Level
			if level == "" || level == "info" {
				level = "warn"
			}
			if err := logger.Initialize(level, ""); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.output, "output", "o", a.output, "Output format: text or json")

	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newSeedCmd(a))
	root.AddCommand(newAdminCmd(a))
	root.AddCommand(newUsersCmd(a))
	root.AddCommand(newTracksCmd(a))
	root.AddCommand(newSearchCmd(a))
	return root
}

// kernel builds the service graph on first use. Background workers are not
// started; commands that need one start it themselves.
func (a *app) kernel(ctx context.Context) (*kernel.Kernel, error) {
	if a.k != nil {
		return a.k, nil
	}
	k, err := kernel.Build(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.k = k
	return k, nil
}

func (a *app) close(ctx context.Context) error {
	if a.k == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.k.Cleanup(ctx)
	a.k = nil
	return err
}

func (a *app) jsonOutput() bool {
	return a.output == outputJSON
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// print writes v as JSON, or msg in text mode
func (a *app) print(v interface{}, format string, args ...interface{}) error {
	if a.jsonOutput() {
		return a.printJSON(v)
	}
	_, err := fmt.Fprintf(a.out, format+"\n", args...)
	return err
}

func (a *app) printTable(v interface{}, headers []string, rows [][]string, aligns []columnAlignment) error {
	if a.jsonOutput() {
		return a.printJSON(v)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(a.out, "No results.")
		return err
	}
	_, err := fmt.Fprintln(a.out, renderTable(headers, rows, aligns))
	return err
}
