package commands

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yoockh/yoointerview/config"
	"github.com/yoockh/yoointerview/internal/bootstrap"
	"github.com/yoockh/yoointerview/internal/logger"
)

var timeout time.Duration

var rootCmd = &cobra.Command{
	Use:   "interviewctl",
	Short: "Operations tool for the interview session service",
	Long: `interviewctl runs maintenance against the same stores the server uses:
expiring overdue sessions, sweeping scheduled slots, unlocking sessions and
creating indexes. Connection settings come from the environment (.env is read).`,
	SilenceUsage: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		_ = godotenv.Load()
	},
}

// withApp builds the services before running fn and closes them afterwards.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, app *bootstrap.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		log := logger.New()
		app, err := bootstrap.Build(ctx, config.LoadSettings(), log)
		if err != nil {
			return err
		}
		defer app.Close(context.Background())

		return fn(ctx, cmd, app, args)
	}
}

func SetVersion(v string) {
	rootCmd.Version = v
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline for the command")

	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(expireCmd)
	rootCmd.AddCommand(resetAttemptsCmd)
	rootCmd.AddCommand(ensureIndexesCmd)
}
