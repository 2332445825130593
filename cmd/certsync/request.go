package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/certreq"
)

func requestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Inspect or seed certificate requests in the SQL store",
	}
	cmd.AddCommand(requestAddCmd(), requestShowCmd())
	return cmd
}

func sqlStore(a *app) (*certreq.SQLStore, error) {
	s, ok := a.store.(*certreq.SQLStore)
	if !ok {
		return nil, errors.New("request add only works against the sql store")
	}
	return s, nil
}

func requestAddCmd() *cobra.Command {
	var (
		r            certreq.Request
		threshold    float64
		requiresBoth bool
	)
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Insert a pending certificate request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r.ID = args[0]
			if cmd.Flags().Changed("threshold") {
				r.PassThreshold = &threshold
			}
			if cmd.Flags().Changed("requires-both") {
				r.RequiresBoth = &requiresBoth
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				s, err := sqlStore(a)
				if err != nil {
					return err
				}
				if err := s.Insert(ctx, r); err != nil {
					return fmt.Errorf("insert %s: %w", r.ID, err)
				}
				a.log.Info("certificate request added", zap.String("request_id", r.ID))
				fmt.Fprintln(stdout, r.ID)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&r.Email, "email", "", "student email")
	f.StringVar(&r.CourseID, "course", "", "LMS course id")
	f.StringVar(&r.BatchID, "batch", "", "batch id")
	f.StringVar(&r.RosterID, "roster", "", "roster id")
	f.Float64Var(&threshold, "threshold", 0, "pass threshold override (0-100)")
	f.BoolVar(&requiresBoth, "requires-both", true, "require both practical and written scores")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a certificate request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				r, err := a.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}
}
