package commands

import (
	"context"
	"log/slog"
	"os"

	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/browser/chromebrowser"
	"studienet-scraper/internal/components/browser/httpbrowser"
	"studienet-scraper/internal/components/telemetry"
	"studienet-scraper/internal/config"
	"studienet-scraper/internal/download"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

func fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	shutdownTelemetry()
	os.Exit(1)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// loadConfig reads and validates the config, `apply` sets the values given as flags.
func loadConfig(needsDest bool, apply func(cfg *config.Config)) config.Config {
	cfg, err := config.Load(afero.NewOsFs(), *configDir)
	if err != nil {
		fatal("failed to read config", err)
	}
	if *driver != "" {
		cfg.Browser.Driver = *driver
	}
	if apply != nil {
		apply(&cfg)
	}
	err = cfg.Validate(needsDest)
	if err != nil {
		fatal("invalid config", err)
	}
	return cfg
}

var dump telemetry.ExchangeOutput

// exchangeOutput is the --dump-dir output, nil when dumping is off.
func exchangeOutput() telemetry.ExchangeOutput {
	if *dumpDir == "" || dump != nil {
		return dump
	}
	output, err := telemetry.NewFsOutput(afero.NewOsFs(), *dumpDir, tel)
	if err != nil {
		fatal("failed to prepare dump directory", err)
	}
	dump = output
	return dump
}

// newLimiter is shared by everything that makes requests to the portal.
func newLimiter(cfg config.Config) *rate.Limiter {
	if cfg.Browser.RequestsPerSecond <= 0 {
		return nil
	}
	return httpbrowser.NewLimiter(cfg.Browser.RequestsPerSecond)
}

func newBrowser(ctx context.Context, cfg config.Config, limiter *rate.Limiter) (browser.API, error) {
	if cfg.Browser.Driver == config.DriverHttp {
		b, err := httpbrowser.New(tel, httpbrowser.Options{
			NavigationTimeout: cfg.Browser.Timeout(),
			Limiter:           limiter,
			CloudflareBypass:  cfg.Browser.CloudflareBypass,
			UserAgent:         cfg.Browser.UserAgent,
			Dump:              exchangeOutput(),
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	b, err := chromebrowser.New(ctx, tel, chromebrowser.Options{
		Headless:          cfg.Browser.IsHeadless(),
		NavigationTimeout: cfg.Browser.Timeout(),
		ExecPath:          cfg.Browser.ExecPath,
		UserAgent:         cfg.Browser.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func newFetcher(fs afero.Fs, cfg config.Config, limiter *rate.Limiter) *download.Fetcher {
	userAgent := cfg.Browser.UserAgent
	if userAgent == "" {
		userAgent = httpbrowser.DefaultUserAgent
	}
	return download.NewFetcher(fs, tel, download.Options{
		Limiter:          limiter,
		CloudflareBypass: cfg.Browser.CloudflareBypass,
		UserAgent:        userAgent,
		Dump:             exchangeOutput(),
	})
}
