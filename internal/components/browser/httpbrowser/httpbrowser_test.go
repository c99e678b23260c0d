package httpbrowser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/telemetry"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form method="post" action="/cgi/login">
	<input type="hidden" name="token" value="abc">
	<input id="login" name="login" type="text">
	<input id="passwd" name="passwd" type="password">
	<input type="checkbox" name="remember" value="yes">
	<input id="nsg-x1-logon-button" type="submit" name="logon" value="Log On">
	<input type="submit" name="cancel" value="Cancel">
</form>
<a id="next" href="/next">next</a>
<span id="orphan">not in a form</span>
</body></html>`

func newPortal(t testing.TB) (*httptest.Server, chan map[string][]string) {
	submitted := make(chan map[string][]string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "NSC_TMAS", Value: "home", Path: "/"})
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/cgi/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		submitted <- r.PostForm
		http.SetCookie(w, &http.Cookie{Name: "FedAuth", Value: "session", Path: "/"})
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1 id="welcome">welcome</h1></body></html>`)
	})
	mux.HandleFunc("/next", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p id="next-page">next</p></body></html>`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		fmt.Fprint(w, `<html></html>`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, submitted
}

func TestLoginForm(t *testing.T) {
	server, submitted := newPortal(t)
	ctx := context.Background()

	b, err := New(telemetry.NewRecorderAPI(), Options{})
	require.NoError(t, err)
	defer b.Close()

	page, err := b.OpenPage(ctx, server.URL)
	require.NoError(t, err)

	require.NoError(t, page.Type(ctx, "#login", "student"))
	require.NoError(t, page.Type(ctx, "#passwd", "hunter2"))
	require.NoError(t, page.ClickAndWait(ctx, "#nsg-x1-logon-button"))

	form := <-submitted
	require.Equal(t, []string{"abc"}, form["token"])
	require.Equal(t, []string{"student"}, form["login"])
	require.Equal(t, []string{"hunter2"}, form["passwd"])
	require.Equal(t, []string{"Log On"}, form["logon"])
	require.NotContains(t, form, "cancel")
	require.NotContains(t, form, "remember")

	require.Equal(t, "/landing", page.Url().Path)
	doc, err := page.Document(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, doc.Find("#welcome").Length())

	cookies, err := page.Cookies(ctx)
	require.NoError(t, err)
	names := map[string]string{}
	for _, c := range cookies {
		names[c.Name] = c.Value
	}
	require.Equal(t, map[string]string{"NSC_TMAS": "home", "FedAuth": "session"}, names)
	require.NoError(t, page.Close())
}

func TestClickAnchor(t *testing.T) {
	server, _ := newPortal(t)
	ctx := context.Background()

	b, err := New(telemetry.NewRecorderAPI(), Options{RequestsPerSecond: 100})
	require.NoError(t, err)
	defer b.Close()

	page, err := b.OpenPage(ctx, server.URL)
	require.NoError(t, err)
	require.NoError(t, page.ClickAndWait(ctx, "#next"))
	require.Equal(t, "/next", page.Url().Path)

	err = page.ClickAndWait(ctx, "#missing")
	require.ErrorIs(t, err, browser.ErrNoSuchElement)
}

func TestPageErrors(t *testing.T) {
	server, _ := newPortal(t)
	ctx := context.Background()

	b, err := New(telemetry.NewRecorderAPI(), Options{})
	require.NoError(t, err)

	page, err := b.OpenPage(ctx, server.URL)
	require.NoError(t, err)

	require.Error(t, page.ClickAndWait(ctx, "#orphan"))
	require.Error(t, page.Type(ctx, "#orphan", "text"))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = page.Document(ctx)
	require.ErrorIs(t, err, browser.ErrClosed)
	_, err = b.OpenPage(ctx, server.URL)
	require.ErrorIs(t, err, browser.ErrClosed)
}

func TestNavigationTimeout(t *testing.T) {
	server, _ := newPortal(t)

	rec := telemetry.NewRecorderAPI()
	b, err := New(rec, Options{NavigationTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.OpenPage(context.Background(), server.URL+"/slow")
	require.True(t, errors.Is(err, browser.ErrNavigationTimeout), err)
	require.NotEmpty(t, rec.Reports("broken"))
}

func TestDump(t *testing.T) {
	server, _ := newPortal(t)
	ctx := context.Background()

	fs := afero.NewMemMapFs()
	output, err := telemetry.NewFsOutput(fs, "/dump", telemetry.NewRecorderAPI())
	require.NoError(t, err)

	b, err := New(telemetry.NewRecorderAPI(), Options{Dump: output})
	require.NoError(t, err)
	defer b.Close()

	page, err := b.OpenPage(ctx, server.URL)
	require.NoError(t, err)
	require.NoError(t, page.ClickAndWait(ctx, "#next"))

	entries, err := afero.ReadDir(fs, "/dump")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.Regexp(t, `^browser-.+-[12]$`, entry.Name())
	}
}

func TestNewLimiter(t *testing.T) {
	table := []struct {
		rps   float64
		burst int
	}{
		{rps: 0.5, burst: 1},
		{rps: 2, burst: 2},
		{rps: 10, burst: 10},
	}
	for _, test := range table {
		require.Equal(t, test.burst, NewLimiter(test.rps).Burst())
	}
}
