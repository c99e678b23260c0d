package studienet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("studienet")

const (
	report_session_establish     = "session.establish"
	report_session_cookie_string = "session.cookie-string"
	report_session_teardown      = "session.teardown"
)

// Session is one logged in browser session. It is not safe for concurrent use.
type Session struct {
	browser browser.API
	portal  Portal
	closed  bool

	tel telemetry.API
}

// Establish logs into the portal with the given browser and returns the session
// owning it. The session takes ownership of `b` even if the login fails, in which
// case `b` is closed before returning.
//
// The login is not verified, it is trusted to have worked once the page navigates
// after clicking the logon button.
func Establish(
	ctx context.Context,
	b browser.API,
	portal Portal,
	tel telemetry.API,
	username, password string,
) (*Session, error) {
	assert.NotNil("browser", b)
	assert.NotNil("tel", tel)
	tel = telemetry.NewScopedAPI("studienet", tel)

	ctx, span := tracer.Start(ctx, "Establish")
	defer span.End()

	fail := func(err error) (*Session, error) {
		tel.ReportBroken(report_session_establish, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		if closeErr := b.Close(); closeErr != nil {
			tel.ReportWarning(report_session_teardown, closeErr)
		}
		return nil, &AuthError{Op: "login", Err: err}
	}

	page, err := b.OpenPage(ctx, portal.HomeUrl)
	if err != nil {
		return fail(fmt.Errorf("open home page: %w", err))
	}
	defer page.Close()

	err = page.Type(ctx, portal.UsernameSelector, username)
	if err != nil {
		return fail(fmt.Errorf("type username: %w", err))
	}
	err = page.Type(ctx, portal.PasswordSelector, password)
	if err != nil {
		return fail(fmt.Errorf("type password: %w", err))
	}
	err = page.ClickAndWait(ctx, portal.LogonSelector)
	if err != nil {
		return fail(fmt.Errorf("logon: %w", err))
	}

	tel.ReportDebug(report_session_establish, "logged in", username)

	return &Session{
		browser: b,
		portal:  portal,
		tel:     tel,
	}, nil
}

// FormatCookies renders cookies as `name1=value1;name2=value2;`, in the given order.
func FormatCookies(cookies []browser.Cookie) string {
	var out strings.Builder
	for _, c := range cookies {
		out.WriteString(c.Name)
		out.WriteString("=")
		out.WriteString(c.Value)
		out.WriteString(";")
	}
	return out.String()
}

// CookieString reads the session's cookies so they can be sent along with plain HTTP
// requests. It opens the home page in a fresh page to do so, the cookies set during
// the login redirects are only reliably visible there.
func (s *Session) CookieString(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "CookieString")
	defer span.End()

	if s.closed {
		return "", &AuthError{Op: "read cookies", Err: browser.ErrClosed}
	}

	fail := func(err error) (string, error) {
		s.tel.ReportBroken(report_session_cookie_string, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cookies")
		return "", &AuthError{Op: "read cookies", Err: err}
	}

	page, err := s.browser.OpenPage(ctx, s.portal.HomeUrl)
	if err != nil {
		return fail(fmt.Errorf("open home page: %w", err))
	}
	defer page.Close()

	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fail(err)
	}
	s.tel.ReportCount(report_session_cookie_string, int64(len(cookies)))

	return FormatCookies(cookies), nil
}

// Teardown closes the browser and every page it has open. It is safe to call more
// than once.
func (s *Session) Teardown() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.browser.Close()
	if err != nil {
		s.tel.ReportWarning(report_session_teardown, err)
		return fmt.Errorf("studienet: teardown: %w", err)
	}
	return nil
}

// WithSession establishes a session, passes it to `fn` and tears it down afterwards
// regardless of how `fn` returns (panics included).
func WithSession(
	ctx context.Context,
	b browser.API,
	portal Portal,
	tel telemetry.API,
	username, password string,
	fn func(s *Session) error,
) (err error) {
	session, err := Establish(ctx, b, portal, tel, username, password)
	if err != nil {
		return err
	}
	defer func() {
		teardownErr := session.Teardown()
		if teardownErr != nil {
			err = errors.Join(err, teardownErr)
		}
	}()

	return fn(session)
}
