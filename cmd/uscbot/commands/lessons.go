package commands

import (
	"log/slog"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"uscbot-backend/lib/scrapers/usc"
)

var (
	lessonsSport string
	lessonsDays  int
)

var lessonsCmd = &cobra.Command{
	Use:   "lessons",
	Short: "List upcoming bookable lessons for a sport.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if lessonsSport == "" {
			lessonsSport = cfg.Sport
		}
		if lessonsDays == 0 {
			lessonsDays = cfg.DaysAhead
		}

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

		slots, err := session.ListLessons(ctx, lessonsSport, lessonsDays)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Time", "Trainer"})
		for _, slot := range slots {
			t.AppendRow(table.Row{slot.Time.Format("Mon 02 Jan 15:04"), slot.Trainer})
		}
		t.Render()
		return nil
	},
}

func init() {
	lessonsCmd.Flags().StringVar(&lessonsSport, "sport", "", "portal sport label to filter on")
	lessonsCmd.Flags().IntVar(&lessonsDays, "days", 0, "how many days ahead to scan")
	rootCmd.AddCommand(lessonsCmd)
}
