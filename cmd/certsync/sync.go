package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/scoresync"
	"github.com/mind-engage/certsync/internal/scoring"
)

type syncFlags struct {
	course  string
	mapping string
}

func (f *syncFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.course, "course", "", "LMS course id (defaults to the one stored on each request)")
	cmd.Flags().StringVar(&f.mapping, "mapping", "", "YAML file describing the assessment mapping")
}

func (f *syncFlags) loadMapping() (*scoring.MappingConfig, error) {
	if f.mapping == "" {
		return nil, nil
	}
	m, err := scoring.LoadMappingFile(f.mapping)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func stderrProgress(completed, total int) {
	fmt.Fprintf(os.Stderr, "\rsynced %d/%d", completed, total)
	if completed == total {
		fmt.Fprintln(os.Stderr)
	}
}

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync LMS scores into certificate requests",
	}
	cmd.AddCommand(syncRequestCmd(), syncBatchCmd(), syncGroupCmd())
	return cmd
}

func syncRequestCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "request <id>",
		Short: "Sync a single certificate request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := f.loadMapping()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res := a.sync.SyncRequest(ctx, args[0], f.course, mapping)
				if jsonOutput() {
					if err := printJSON(res); err != nil {
						return err
					}
				} else {
					printResults([]scoresync.SyncResult{res})
				}
				if !res.Success {
					return fmt.Errorf("sync %s: %s", args[0], res.Error)
				}
				return nil
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func syncBatchCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "batch <id>...",
		Short: "Sync a list of certificate requests one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mapping, err := f.loadMapping()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res := a.sync.SyncBatch(ctx, args, f.course, mapping, progressFor())
				return printBatch(res)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func syncGroupCmd() *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:       "group batch|roster <id>",
		Short:     "Sync every certificate request in a batch or roster",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(certreq.GroupBatch), string(certreq.GroupRoster)},
		RunE: func(cmd *cobra.Command, args []string) error {
			g := certreq.Group{Kind: certreq.GroupKind(args[0]), ID: args[1]}
			if err := g.Validate(); err != nil {
				return err
			}
			mapping, err := f.loadMapping()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				res := a.sync.SyncGroup(ctx, g, f.course, mapping, progressFor())
				return printBatch(res)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

// progressFor stays quiet when stdout is machine-readable.
func progressFor() scoresync.ProgressFunc {
	if jsonOutput() {
		return nil
	}
	return stderrProgress
}
