package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"studienet-scraper/internal/components/telemetry"
	"studienet-scraper/internal/config"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	verbose   *bool
	configDir *string
	driver    *string
	dumpDir   *string
)

var (
	tel  telemetry.API
	otel telemetry.Otel
)

func init() {
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Prints debug output, every request included.")
	configDir = rootCmd.PersistentFlags().String("config-dir", ".", "The directory holding .env and studienet.json5.")
	driver = rootCmd.PersistentFlags().String("driver", "", `The browser driver, "chrome" or "http". Overrides the config.`)
	dumpDir = rootCmd.PersistentFlags().String("dump-dir", "", "Writes every HTTP exchange into this directory (emptied first), credentials included.")
}

var rootCmd = &cobra.Command{
	Use:   "studienet",
	Short: "studienet downloads the session materials of every class on VIA studienet.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slogApi := telemetry.NewSlogAPI(os.Stderr, telemetry.SlogOptions{
			Verbose: *verbose,
			Color:   isTerminal(os.Stderr),
		})
		slog.SetDefault(slogApi.Logger())
		tel = slogApi

		otlpConfig, ok, err := config.LoadTelemetry(afero.NewOsFs(), *configDir)
		if err != nil {
			fatal("failed to read telemetry config", err)
		}
		if !ok {
			return
		}
		otel, err = telemetry.SetupOtel(cmd.Context(), "studienet", otlpConfig)
		if err != nil {
			fatal("failed to setup telemetry", err)
		}
		tel = telemetry.NewMeteredAPI(slogApi)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdownTelemetry()
	},
}

func shutdownTelemetry() {
	err := otel.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err.Error())
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
