package commands

import (
	"context"
	"fmt"
	"os"

	"studienet-scraper/internal/config"
	"studienet-scraper/internal/crawl"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	scrapeDest *string
	scrapeOnly *[]string
)

func init() {
	scrapeDest = scrapeCmd.Flags().String("dest", "", "The directory to download into, overrides DEST.")
	scrapeOnly = scrapeCmd.Flags().StringArray("only", nil, "Only scrape the classes whose name contains this, can be repeated.")
	rootCmd.AddCommand(scrapeCmd)
}

// scrape runs one crawl with a fresh browser.
func scrape(ctx context.Context, fs afero.Fs, cfg config.Config, only []string) (crawl.Report, error) {
	exists, err := afero.DirExists(fs, cfg.Dest)
	if err != nil {
		return crawl.Report{}, err
	}
	if !exists {
		return crawl.Report{}, fmt.Errorf("destination %s is not a directory", cfg.Dest)
	}

	limiter := newLimiter(cfg)
	b, err := newBrowser(ctx, cfg, limiter)
	if err != nil {
		return crawl.Report{}, fmt.Errorf("start browser: %w", err)
	}

	return crawl.Run(ctx, crawl.Options{
		Browser:  b,
		Portal:   cfg.Portal,
		Username: cfg.Username,
		Password: cfg.Password,
		Dest:     cfg.Dest,
		Only:     only,
		Fetcher:  newFetcher(fs, cfg, limiter),
		Tel:      tel,
	})
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--dest <dir>] [--only <class>]...",
	Short: "Downloads the session materials of every class into <dest>/<class>/.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(true, func(cfg *config.Config) {
			if *scrapeDest != "" {
				cfg.Dest = *scrapeDest
			}
		})

		tel.ReportInfo("scraping", "username", cfg.Username, "dest", cfg.Dest, "driver", cfg.Browser.Driver)
		report, err := scrape(cmd.Context(), afero.NewOsFs(), cfg, *scrapeOnly)
		report.Render(os.Stdout)
		if err != nil {
			fatal("scrape aborted", err)
		}
	},
}
