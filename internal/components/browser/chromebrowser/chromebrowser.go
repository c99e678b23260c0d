// Package chromebrowser implements browser.API on top of a headless Chrome driven by chromedp.
package chromebrowser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/telemetry"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	report_browser_start    = "browser.start"
	report_browser_navigate = "browser.navigate"
	report_page_click       = "page.click-and-wait"
)

type Options struct {
	// shows the browser window when false, useful for debugging selectors
	Headless bool
	// defaults to 30 seconds
	NavigationTimeout time.Duration
	// path to the chrome binary, looked up in PATH when empty
	ExecPath string
	// chrome's own when empty
	UserAgent string
}

type Browser struct {
	ctx         context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
	timeout     time.Duration
	closed      bool

	tel telemetry.API
}

// allocatorOptions is split out so the flags can be checked without starting chrome.
func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out, chromedp.Flag("headless", opts.Headless))
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	return out
}

// New launches chrome, the browser lives until Close is called or `ctx` is cancelled.
func New(ctx context.Context, tel telemetry.API, opts Options) (*Browser, error) {
	assert.NotNil("tel", tel)
	tel = telemetry.NewScopedAPI("chrome_browser", tel)

	timeout := opts.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// the first Run on a fresh context starts the browser process
	err := chromedp.Run(browserCtx)
	if err != nil {
		cancel()
		cancelAlloc()
		tel.ReportBroken(report_browser_start, err)
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Browser{
		ctx:         browserCtx,
		cancelAlloc: cancelAlloc,
		cancel:      cancel,
		timeout:     timeout,
		tel:         tel,
	}, nil
}

func (b *Browser) OpenPage(ctx context.Context, link string) (browser.Page, error) {
	if b.closed {
		return nil, browser.ErrClosed
	}
	b.tel.ReportDebug(report_browser_navigate, link)

	// a new context derived from the browser context opens a new tab
	tabCtx, closeTab := chromedp.NewContext(b.ctx)
	p := &page{browser: b, ctx: tabCtx, close: closeTab}

	err := p.run(ctx, chromedp.Navigate(link))
	if err != nil {
		closeTab()
		b.tel.ReportBroken(report_browser_navigate, err, link)
		return nil, err
	}
	return p, nil
}

func (b *Browser) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	defer b.cancelAlloc()
	defer b.cancel()
	return chromedp.Cancel(b.ctx)
}

type page struct {
	browser *Browser
	ctx     context.Context
	close   context.CancelFunc
	closed  bool
}

// run executes actions on the tab, bounded by both the caller's context and the
// navigation timeout.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed || p.browser.closed {
		return browser.ErrClosed
	}

	runCtx, cancel := context.WithTimeout(p.ctx, p.browser.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", browser.ErrNavigationTimeout, err)
	}
	return err
}

func (p *page) Url() *url.URL {
	var location string
	err := p.run(context.Background(), chromedp.Location(&location))
	if err != nil {
		return nil
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return nil
	}
	return parsed
}

func (p *page) Document(ctx context.Context) (*goquery.Document, error) {
	var location string
	var contents string
	err := p.run(
		ctx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &contents, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contents))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	doc.Url, _ = url.Parse(location)
	return doc, nil
}

func (p *page) Type(ctx context.Context, selector, text string) error {
	return p.run(
		ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *page) ClickAndWait(ctx context.Context, selector string) error {
	if p.closed || p.browser.closed {
		return browser.ErrClosed
	}

	loaded := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(p.ctx)
	defer stopListening()
	chromedp.ListenTarget(listenCtx, func(ev any) {
		if _, ok := ev.(*cdppage.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})

	p.browser.tel.ReportDebug(report_page_click, selector)

	err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
	if err != nil {
		p.browser.tel.ReportBroken(report_page_click, err, selector)
		return err
	}

	timer := time.NewTimer(p.browser.timeout)
	defer timer.Stop()
	select {
	case <-loaded:
		return nil
	case <-timer.C:
		p.browser.tel.ReportBroken(report_page_click, browser.ErrNavigationTimeout, selector)
		return browser.ErrNavigationTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]browser.Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = browser.Cookie{Name: c.Name, Value: c.Value}
	}
	return out, nil
}

func (p *page) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	p.close()
	return nil
}
