package commands

import (
	"context"
	"os"

	"studienet-scraper/internal/components/chrono"
	"studienet-scraper/internal/config"
	"studienet-scraper/internal/crawl"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const report_watch_scrape = "watch.scrape"

var (
	watchSchedule *string
	watchDest     *string
	watchOnly     *[]string
)

func init() {
	watchSchedule = watchCmd.Flags().String("schedule", "", `A cron schedule like "0 7 * * *" or "@every 6h", overrides the config.`)
	watchDest = watchCmd.Flags().String("dest", "", "The directory to download into, overrides DEST.")
	watchOnly = watchCmd.Flags().StringArray("only", nil, "Only scrape the classes whose name contains this, can be repeated.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--schedule <cron>] [--dest <dir>] [--only <class>]...",
	Short: "Scrapes on a schedule until interrupted, a failed scrape does not stop it.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(true, func(cfg *config.Config) {
			if *watchSchedule != "" {
				cfg.Schedule = *watchSchedule
			}
			if *watchDest != "" {
				cfg.Dest = *watchDest
			}
		})
		if cfg.Schedule == "" {
			cfg.Schedule = "@daily"
		}

		location, err := chrono.LoadLocation(cfg.Timezone)
		if err != nil {
			fatal("invalid timezone", err)
		}

		fs := afero.NewOsFs()
		scheduler := chrono.NewScheduler(tel, location)
		err = scheduler.Schedule(cfg.Schedule, func(ctx context.Context) {
			report, err := scrape(ctx, fs, cfg, *watchOnly)
			report.Render(os.Stdout)
			if err != nil {
				tel.ReportBroken(report_watch_scrape, err, crawl.IsFatal(err))
			}
		})
		if err != nil {
			fatal("invalid schedule", err)
		}

		tel.ReportInfo("watching", "schedule", cfg.Schedule, "timezone", location.String())
		scheduler.Run(cmd.Context())
	},
}
