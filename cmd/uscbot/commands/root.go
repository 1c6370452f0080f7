package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"uscbot-backend/lib/telemetry"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "uscbot",
	Short: "uscbot scrapes the USC booking portal and offers lessons over telegram.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)

		t, err := telemetry.SetupFromEnv(cmd.Context(), "uscbot")
		if err != nil {
			slog.Warn("telemetry export disabled", "err", err)
			return
		}
		cobra.OnFinalize(func() {
			if err := t.Shutdown(context.Background()); err != nil {
				slog.Warn("failed to shut down telemetry", "err", err)
			}
		})
		telemetry.InstrumentPerfStats(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
