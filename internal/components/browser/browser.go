// Package browser describes a controllable browser session: something that can open
// pages, read their DOM, fill in and submit forms and hand out its cookies.
//
// Two drivers exist, chromebrowser drives a headless Chrome over the devtools protocol,
// httpbrowser replays navigations as plain HTTP requests and is used where no
// javascript needs to run (and in tests).
package browser

import (
	"context"
	"errors"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrNavigationTimeout is returned when a navigation expected after a click
	// did not happen within the navigation timeout.
	ErrNavigationTimeout = errors.New("browser: navigation timed out")
	// ErrClosed is returned by every operation on a closed page or session.
	ErrClosed = errors.New("browser: closed")
	// ErrNoSuchElement is returned when a selector matches nothing.
	ErrNoSuchElement = errors.New("browser: no element matches selector")
)

type Cookie struct {
	Name  string
	Value string
}

// API is one browser session, every page it opens shares its cookies.
//
// note: fault injection point
type API interface {
	// OpenPage opens a new page (tab) and navigates it to `link`, it returns once the
	// page has finished loading.
	OpenPage(ctx context.Context, link string) (Page, error)
	// Close closes the session, all pages opened by it become invalid.
	Close() error
}

// Page is a single open page of a session.
type Page interface {
	// Url is the location of the page after all redirects.
	Url() *url.URL
	// Document returns the current DOM of the page.
	Document(ctx context.Context) (*goquery.Document, error)
	// Type types `text` into the first element matching `selector`.
	Type(ctx context.Context, selector, text string) error
	// ClickAndWait clicks the first element matching `selector` and waits for the
	// navigation it triggers to finish, or fails with ErrNavigationTimeout.
	ClickAndWait(ctx context.Context, selector string) error
	// Cookies returns the cookies visible at the page's current url in the order
	// given by the driver.
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}
