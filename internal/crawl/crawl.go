// Package crawl runs a whole scrape: log in, list the classes, list the materials of each
// class and download them one after the other.
package crawl

import (
	"context"
	"errors"
	"path/filepath"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/telemetry"
	"studienet-scraper/internal/download"
	"studienet-scraper/internal/studienet"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("crawl")

const (
	report_crawl_run       = "crawl.run"
	report_crawl_materials = "crawl.materials"
	report_crawl_failed    = "crawl.failed"
)

// Fetcher saves a single material.
//
// note: fault injection point
type Fetcher interface {
	FetchAndSave(ctx context.Context, link, cookie, destDir string) error
}

type Options struct {
	// owned by the run from here on, it is closed before Run returns
	Browser  browser.API
	Portal   studienet.Portal
	Username string
	Password string
	Dest     string
	// class name filters, no filters means every class
	Only    []string
	Fetcher Fetcher
	Tel     telemetry.API
}

// IsFatal tells apart the errors that end a run from those that only lose one material.
// Cancellation is always fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var downloadErr *download.DownloadError
	return !errors.As(err, &downloadErr)
}

// Run performs a scrape into `opts.Dest`. It returns the report of everything done
// up to the point it stopped, even when it failed.
func Run(ctx context.Context, opts Options) (Report, error) {
	assert.NotNil("browser", opts.Browser)
	assert.NotNil("fetcher", opts.Fetcher)
	assert.NotNil("tel", opts.Tel)
	assert.NotEmptyStr("dest", opts.Dest)

	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	tel := telemetry.NewScopedAPI("crawl", opts.Tel)
	only := NormalizeFilters(opts.Only)

	report := Report{}
	err := studienet.WithSession(
		ctx,
		opts.Browser,
		opts.Portal,
		opts.Tel,
		opts.Username,
		opts.Password,
		func(s *studienet.Session) error {
			cookie, err := s.CookieString(ctx)
			if err != nil {
				return err
			}

			classes, err := s.ListClasses(ctx)
			if err != nil {
				return err
			}

			for _, class := range classes {
				if !MatchClass(class.Name, only) {
					tel.ReportDebug("skipping class", class.Name)
					continue
				}
				classReport, err := crawlClass(ctx, tel, s, opts, cookie, class)
				report.Classes = append(report.Classes, classReport)
				if err != nil {
					return err
				}
			}
			return nil
		},
	)

	span.SetAttributes(
		attribute.Int("classes", len(report.Classes)),
		attribute.Int("saved", report.Saved()),
		attribute.Int("failed", report.Failed()),
	)
	tel.ReportCount(report_crawl_materials, int64(report.Saved()))
	tel.ReportCount(report_crawl_failed, int64(report.Failed()))

	if err != nil {
		tel.ReportBroken(report_crawl_run, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "scrape aborted")
		return report, err
	}
	return report, nil
}

func crawlClass(
	ctx context.Context,
	tel telemetry.API,
	s *studienet.Session,
	opts Options,
	cookie string,
	class studienet.ClassEntry,
) (ClassReport, error) {
	classReport := ClassReport{Name: class.Name}

	tel.ReportInfo("scraping material urls", "class", class.Name)
	materials, err := s.ListMaterials(ctx, class.Url)
	if err != nil {
		return classReport, err
	}
	classReport.Materials = len(materials)
	tel.ReportInfo("found materials", "class", class.Name, "count", len(materials))

	dir, dirErr := download.ClassDir(opts.Dest, class.Name)
	for _, link := range materials {
		tel.ReportInfo("fetching file", "url", link)

		var err error
		if dirErr != nil {
			err = &download.DownloadError{Url: link, Err: dirErr}
		} else {
			err = opts.Fetcher.FetchAndSave(ctx, link, cookie, dir)
		}
		if IsFatal(err) {
			return classReport, err
		}
		if err != nil {
			tel.ReportInfo("fetch failed", "url", link, "err", err)
			classReport.FailedUrls = append(classReport.FailedUrls, link)
			continue
		}

		classReport.Saved++
		tel.ReportInfo("file saved", "url", link, "path", filepath.Join(dir, download.Filename(link)))
	}

	return classReport, nil
}
