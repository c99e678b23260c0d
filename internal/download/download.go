// Package download fetches materials over plain HTTP, outside of the browser, and
// streams them to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("download")

const (
	report_fetcher_fetch_and_save = "fetcher.fetch-and-save"
	report_fetcher_status         = "fetcher.status"
)

// ErrUnsafeClassName is returned for class names that would not map to a single
// directory directly under the destination.
var ErrUnsafeClassName = errors.New("unsafe class name")

// DownloadError means a single material could not be fetched or written, the run can
// carry on with the next one.
type DownloadError struct {
	Url string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %s", e.Url, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Filename is the part of `link` after its last "/", it is neither decoded nor stripped
// of its query.
func Filename(link string) string {
	return link[strings.LastIndex(link, "/")+1:]
}

// ClassDir is the directory the materials of a class are saved in. Class names come from
// the portal, names that could escape `destRoot` are rejected with ErrUnsafeClassName.
func ClassDir(destRoot, className string) (string, error) {
	switch {
	case className == "", className == ".", className == "..",
		strings.ContainsAny(className, "/"+string(filepath.Separator)):
		return "", fmt.Errorf("%w: %q", ErrUnsafeClassName, className)
	}
	return filepath.Join(destRoot, className), nil
}

// Target is the path the material at `link` of a class is saved to.
func Target(destRoot, className, link string) (string, error) {
	dir, err := ClassDir(destRoot, className)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, Filename(link)), nil
}

type Options struct {
	// 0 means no timeout, it covers reading the whole body
	Timeout          time.Duration
	Limiter          *rate.Limiter
	CloudflareBypass bool
	UserAgent        string
	// receives every exchange when set, bodies are left out
	Dump telemetry.ExchangeOutput
}

// Fetcher downloads materials, it holds no cookies of its own: the session's cookies are
// passed along with every request.
type Fetcher struct {
	http *resty.Client
	fs   afero.Fs
	tel  telemetry.API
}

func NewFetcher(fs afero.Fs, tel telemetry.API, opts Options) *Fetcher {
	assert.NotNil("fs", fs)
	assert.NotNil("tel", tel)
	tel = telemetry.NewScopedAPI("download", tel)

	client := resty.New()
	client.SetCookieJar(nil)
	client.SetTimeout(opts.Timeout)
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.Limiter != nil {
		limiter := opts.Limiter
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	telemetry.InstrumentResty(client, tel)
	telemetry.DumpResty(client, "download", opts.Dump)

	return &Fetcher{
		http: client,
		fs:   fs,
		tel:  tel,
	}
}

// ensureDir creates `dir` but never its parents. The parent is checked by hand because
// some filesystems (afero.MemMapFs) create missing parents on Mkdir.
func (f *Fetcher) ensureDir(dir string) error {
	exists, err := afero.DirExists(f.fs, dir)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	parent := filepath.Dir(dir)
	exists, err = afero.DirExists(f.fs, parent)
	if err != nil {
		return err
	}
	if !exists {
		return &os.PathError{Op: "mkdir", Path: dir, Err: os.ErrNotExist}
	}
	return f.fs.Mkdir(dir, 0o755)
}

// FetchAndSave GETs `link` with `cookie` as the cookie header and streams the response
// body into `destDir`/Filename(link), creating `destDir` (but not its parents) once the
// server has answered.
//
// The status code is not checked, whatever the server answers with is saved. A failure
// halfway through the body leaves the partial file behind.
func (f *Fetcher) FetchAndSave(ctx context.Context, link, cookie, destDir string) error {
	ctx, span := tracer.Start(ctx, "FetchAndSave")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	fail := func(err error) error {
		f.tel.ReportBroken(report_fetcher_fetch_and_save, err, link)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to download")
		return &DownloadError{Url: link, Err: err}
	}

	res, err := f.http.R().
		SetContext(ctx).
		SetHeader("cookie", cookie).
		SetDoNotParseResponse(true).
		Get(link)
	if err != nil {
		return fail(err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		f.tel.ReportWarning(report_fetcher_status, link, res.Status())
	}

	err = f.ensureDir(destDir)
	if err != nil {
		return fail(fmt.Errorf("create %s: %w", destDir, err))
	}

	path := filepath.Join(destDir, Filename(link))
	file, err := f.fs.Create(path)
	if err != nil {
		return fail(err)
	}
	written, err := io.Copy(file, body)
	closeErr := file.Close()
	if err != nil {
		return fail(fmt.Errorf("write %s: %w", path, err))
	}
	if closeErr != nil {
		return fail(closeErr)
	}

	span.SetAttributes(attribute.Int64("bytes", written))
	f.tel.ReportDebug(report_fetcher_fetch_and_save, link, path, written)

	return nil
}
