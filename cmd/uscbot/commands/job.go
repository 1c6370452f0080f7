package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"uscbot-backend/lib/scrapers/usc"
	"uscbot-backend/lib/telegram"
	"uscbot-backend/services/notifier"
)

var schedule string

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Scrape upcoming lessons and offer new ones to subscribers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		notify := notifier.NewService(store, telegram.NewClient(cfg.BotToken))

		// one fresh session per round, closed when the round is done
		run := func(ctx context.Context) error {
			session, err := newSession(ctx, cfg, usc.Options{
				Username: cfg.JobLogin.Username,
				Password: cfg.JobLogin.Password,
				Provider: usc.ProviderUvA,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := session.Close(ctx); err != nil {
					slog.WarnContext(ctx, "failed to close scraper session", "err", err)
				}
			}()
			return notify.NotifySport(ctx, session, cfg.Sport, cfg.DaysAhead)
		}

		if schedule == "" {
			return run(ctx)
		}

		c := cron.New()
		_, err = c.AddFunc(schedule, func() {
			if err := run(ctx); err != nil {
				slog.ErrorContext(ctx, "offer round failed", "err", err)
			}
		})
		if err != nil {
			return err
		}
		c.Start()
		slog.InfoContext(ctx, "offer job scheduled", "schedule", schedule)

		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	jobCmd.Flags().StringVar(&schedule, "schedule", "", "cron expression to run the job on, runs once when empty")
	rootCmd.AddCommand(jobCmd)
}
