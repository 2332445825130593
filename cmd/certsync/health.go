package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/monitoring"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report database, LMS and sync health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if _, err := a.metrics.Collect(ctx); err != nil {
					a.log.Warn("metrics collection failed", zap.Error(err))
				}
				rep := a.health.Check(ctx)
				if err := printHealth(rep); err != nil {
					return err
				}
				if rep.Status == monitoring.StatusUnhealthy {
					return fmt.Errorf("status %s", rep.Status)
				}
				return nil
			})
		},
	}
}
