package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yoockh/yoointerview/internal/bootstrap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire past-window scheduled slots and delete old expired ones",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, _ []string) error {
		res, err := app.Scheduled.Sweep(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("scheduled slots: %d expired, %d deleted\n", res.Expired, res.Deleted)
		return nil
	}),
}

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Mark every open session whose access window has closed as expired",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, _ []string) error {
		n, err := app.Sessions.ExpireOverdue(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("sessions expired: %d\n", n)
		return nil
	}),
}

var resetAttemptsCmd = &cobra.Command{
	Use:   "reset-attempts [session-id]",
	Short: "Unlock a session by resetting its login attempt counter",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error {
		if err := app.Sessions.ResetAttempts(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("attempts reset for session %s\n", args[0])
		return nil
	}),
}
