package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func lmsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lms",
		Short: "LMS connectivity",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "Check that the LMS API is reachable with the configured credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				start := time.Now()
				err := a.lms.TestConnection(ctx)
				took := time.Since(start)
				if jsonOutput() {
					out := map[string]any{"ok": err == nil, "latency_ms": took.Milliseconds()}
					if err != nil {
						out["error"] = err.Error()
					}
					if perr := printJSON(out); perr != nil {
						return perr
					}
				} else if err == nil {
					fmt.Fprintf(stdout, "ok (%s)\n", took.Round(time.Millisecond))
				}
				return err
			})
		},
	})
	return cmd
}
