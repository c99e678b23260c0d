// Package httpbrowser implements browser.API without a rendering engine: navigations are
// plain HTTP requests, typing edits the value of form fields in the parsed document and
// clicking submits the form (or follows the anchor) the element belongs to.
package httpbrowser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

const (
	report_browser_navigate = "browser.navigate"
	report_page_click       = "page.click-and-wait"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

type Options struct {
	// defaults to 30 seconds
	NavigationTimeout time.Duration
	// 0 means no limit, ignored if Limiter is set
	RequestsPerSecond float64
	// shared with other clients hitting the same portal
	Limiter          *rate.Limiter
	CloudflareBypass bool
	UserAgent        string
	// receives every exchange when set
	Dump telemetry.ExchangeOutput
}

type Browser struct {
	http    *resty.Client
	jar     http.CookieJar
	timeout time.Duration
	closed  bool

	tel telemetry.API
}

func New(tel telemetry.API, opts Options) (*Browser, error) {
	assert.NotNil("tel", tel)
	tel = telemetry.NewScopedAPI("http_browser", tel)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", userAgent)
	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}

	limiter := opts.Limiter
	if limiter == nil && opts.RequestsPerSecond > 0 {
		limiter = NewLimiter(opts.RequestsPerSecond)
	}
	if limiter != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, tel)
	telemetry.DumpResty(client, "browser", opts.Dump)

	return &Browser{
		http:    client,
		jar:     jar,
		timeout: timeout,
		tel:     tel,
	}, nil
}

// NewLimiter allows `rps` requests per second with a burst of at least 1 so that no
// request is ever dropped.
func NewLimiter(rps float64) *rate.Limiter {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type loaded struct {
	url *url.URL
	doc *goquery.Document
}

// load performs a navigation, `send` issues the request on the given resty request.
func (b *Browser) load(ctx context.Context, send func(req *resty.Request) (*resty.Response, error)) (loaded, error) {
	if b.closed {
		return loaded{}, browser.ErrClosed
	}

	navCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := send(b.http.R().SetContext(navCtx))
	if err != nil {
		if ctx.Err() == nil && isTimeout(err) {
			return loaded{}, fmt.Errorf("%w: %w", browser.ErrNavigationTimeout, err)
		}
		return loaded{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return loaded{}, fmt.Errorf("parse: %w", err)
	}

	finalUrl := res.RawResponse.Request.URL
	doc.Url = finalUrl
	return loaded{url: finalUrl, doc: doc}, nil
}

func (b *Browser) OpenPage(ctx context.Context, link string) (browser.Page, error) {
	b.tel.ReportDebug(report_browser_navigate, link)

	result, err := b.load(ctx, func(req *resty.Request) (*resty.Response, error) {
		return req.Get(link)
	})
	if err != nil {
		b.tel.ReportBroken(report_browser_navigate, err, link)
		return nil, err
	}

	return &page{
		browser: b,
		url:     result.url,
		doc:     result.doc,
	}, nil
}

func (b *Browser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.http.GetClient().CloseIdleConnections()
	return nil
}
