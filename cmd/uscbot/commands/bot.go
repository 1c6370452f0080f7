package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"uscbot-backend/lib/scrapers/usc"
	"uscbot-backend/lib/telegram"
	"uscbot-backend/services/bot"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the telegram bot handling sign-ups and booking responses.",
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
		tg := telegram.NewClient(cfg.BotToken)

		factory := func(ctx context.Context, opts usc.Options) (bot.Booker, error) {
			session, err := newSession(ctx, cfg, opts)
			if err != nil {
				return nil, err
			}
			return session, nil
		}

		slog.InfoContext(ctx, "bot started")
		err = bot.NewService(store, tg, factory).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
