package httpbrowser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"studienet-scraper/internal/components/browser"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

type page struct {
	browser *Browser
	url     *url.URL
	doc     *goquery.Document
	closed  bool
}

func (p *page) check() error {
	if p.closed || p.browser.closed {
		return browser.ErrClosed
	}
	return nil
}

func (p *page) Url() *url.URL {
	return p.url
}

func (p *page) Document(ctx context.Context) (*goquery.Document, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

func (p *page) find(selector string) (*goquery.Selection, error) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoSuchElement, selector)
	}
	return sel, nil
}

// Type appends `text` to the value of the matched field, the same way keystrokes would.
func (p *page) Type(ctx context.Context, selector, text string) error {
	if err := p.check(); err != nil {
		return err
	}
	field, err := p.find(selector)
	if err != nil {
		return err
	}

	switch goquery.NodeName(field) {
	case "input":
		field.SetAttr("value", field.AttrOr("value", "")+text)
	case "textarea":
		field.SetText(field.Text() + text)
	default:
		return fmt.Errorf("cannot type into <%s> (%s)", goquery.NodeName(field), selector)
	}
	return nil
}

func (p *page) ClickAndWait(ctx context.Context, selector string) error {
	if err := p.check(); err != nil {
		return err
	}
	target, err := p.find(selector)
	if err != nil {
		return err
	}

	var send func(req *resty.Request) (*resty.Response, error)
	if goquery.NodeName(target) == "a" {
		href, ok := target.Attr("href")
		if !ok {
			return fmt.Errorf("anchor %s has no href", selector)
		}
		link, err := p.url.Parse(strings.TrimSpace(href))
		if err != nil {
			return err
		}
		send = func(req *resty.Request) (*resty.Response, error) {
			return req.Get(link.String())
		}
	} else {
		form := p.formOf(target)
		if form == nil {
			return fmt.Errorf("%s does not belong to a form", selector)
		}
		send, err = p.submission(form, target)
		if err != nil {
			return err
		}
	}

	p.browser.tel.ReportDebug(report_page_click, selector, p.url.String())

	result, err := p.browser.load(ctx, send)
	if err != nil {
		p.browser.tel.ReportBroken(report_page_click, err, selector)
		return err
	}
	p.url = result.url
	p.doc = result.doc
	return nil
}

// formOf finds the form an element submits, either through its `form` attribute or
// by being nested inside it.
func (p *page) formOf(el *goquery.Selection) *goquery.Selection {
	if id, ok := el.Attr("form"); ok && id != "" {
		form := p.doc.Find("form#" + id).First()
		if form.Length() > 0 {
			return form
		}
	}
	form := el.Closest("form")
	if form.Length() == 0 {
		return nil
	}
	return form
}

func isButton(field *goquery.Selection) bool {
	if goquery.NodeName(field) == "button" {
		return true
	}
	switch strings.ToLower(field.AttrOr("type", "text")) {
	case "submit", "button", "image", "reset":
		return true
	}
	return false
}

// formValues collects the successful controls of a form, `clicked` is the submitter.
func formValues(form, clicked *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input, select, textarea, button").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		if isButton(field) {
			if clicked.Length() > 0 && field.Nodes[0] == clicked.Nodes[0] {
				values.Add(name, field.AttrOr("value", ""))
			}
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			values.Add(name, field.Text())
		case "select":
			option := field.Find("option[selected]").First()
			if option.Length() == 0 {
				option = field.Find("option").First()
			}
			if option.Length() > 0 {
				values.Add(name, option.AttrOr("value", option.Text()))
			}
		default:
			kind := strings.ToLower(field.AttrOr("type", "text"))
			if kind == "checkbox" || kind == "radio" {
				if _, checked := field.Attr("checked"); !checked {
					return
				}
				values.Add(name, field.AttrOr("value", "on"))
				return
			}
			values.Add(name, field.AttrOr("value", ""))
		}
	})
	return values
}

func (p *page) submission(form, clicked *goquery.Selection) (func(req *resty.Request) (*resty.Response, error), error) {
	action, err := p.url.Parse(strings.TrimSpace(form.AttrOr("action", "")))
	if err != nil {
		return nil, fmt.Errorf("parse form action: %w", err)
	}
	method := strings.ToUpper(form.AttrOr("method", "GET"))
	values := formValues(form, clicked)

	if method == "POST" {
		return func(req *resty.Request) (*resty.Response, error) {
			return req.SetFormDataFromValues(values).Post(action.String())
		}, nil
	}

	action.RawQuery = values.Encode()
	return func(req *resty.Request) (*resty.Response, error) {
		return req.Get(action.String())
	}, nil
}

func (p *page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	var cookies []browser.Cookie
	for _, c := range p.browser.jar.Cookies(p.url) {
		cookies = append(cookies, browser.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func (p *page) Close() error {
	p.closed = true
	return nil
}
