package crawl

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"testing"

	"studienet-scraper/internal/components/browser"
	"studienet-scraper/internal/components/browser/httpbrowser"
	"studienet-scraper/internal/components/telemetry"
	"studienet-scraper/internal/download"
	"studienet-scraper/internal/studienet"
	"studienet-scraper/internal/studienet/studienettest"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const (
	username = "student"
	password = "hunter2"
	dest     = "/dest"
)

type trackedBrowser struct {
	browser.API
	closes int
}

func (b *trackedBrowser) Close() error {
	b.closes++
	return b.API.Close()
}

type fixture struct {
	server  *studienettest.Server
	browser *trackedBrowser
	fs      afero.Fs
	tel     *telemetry.RecorderAPI
	opts    Options
}

func newFixture(t testing.TB, classes []studienettest.Class) fixture {
	server := studienettest.NewServer(t, username, password, classes)
	tel := telemetry.NewRecorderAPI()

	b, err := httpbrowser.New(tel, httpbrowser.Options{})
	require.NoError(t, err)
	tracked := &trackedBrowser{API: b}

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(dest, 0o755))

	return fixture{
		server:  server,
		browser: tracked,
		fs:      fs,
		tel:     tel,
		opts: Options{
			Browser:  tracked,
			Portal:   server.Portal(),
			Username: username,
			Password: password,
			Dest:     dest,
			Fetcher:  download.NewFetcher(fs, tel, download.Options{}),
			Tel:      tel,
		},
	}
}

func (f fixture) read(t testing.TB, class, name string) []byte {
	content, err := afero.ReadFile(f.fs, filepath.Join(dest, class, name))
	require.NoError(t, err)
	return content
}

func (f fixture) infos(msg string) []telemetry.Report {
	var out []telemetry.Report
	for _, r := range f.tel.Reports("info") {
		if r.Id == msg {
			out = append(out, r)
		}
	}
	return out
}

func TestRun(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name: "SWA5",
			Path: "/sites/SWA5",
			Groups: [][]studienettest.Material{
				{
					{Path: "/files/SWA5/f1.pdf", Body: []byte("first")},
					{Path: "/files/SWA5/f2.pdf", Body: []byte("second")},
				},
			},
		},
	})

	report, err := Run(context.Background(), f.opts)
	require.NoError(t, err)

	require.Equal(t, []byte("first"), f.read(t, "SWA5", "f1.pdf"))
	require.Equal(t, []byte("second"), f.read(t, "SWA5", "f2.pdf"))
	require.Equal(t, 1, f.browser.closes)

	expected := Report{Classes: []ClassReport{{Name: "SWA5", Materials: 2, Saved: 2}}}
	if diff := cmp.Diff(expected, report); diff != "" {
		t.Fatal(diff)
	}

	cookie := f.server.CookieHeader("/files/SWA5/f1.pdf")
	require.Contains(t, cookie, studienettest.SessionCookie+"="+studienettest.SessionValue+";")

	require.Len(t, f.infos("scraping material urls"), 1)
	found := f.infos("found materials")
	require.Len(t, found, 1)
	require.Equal(t, []any{"class", "SWA5", "count", 2}, found[0].Params)
	require.Len(t, f.infos("fetching file"), 2)
	require.Len(t, f.infos("file saved"), 2)
}

func TestRunQueryInUrl(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name: "SWA5",
			Path: "/sites/SWA5",
			Groups: [][]studienettest.Material{
				{{Path: "/files/SWA5/notes.pdf?v=2", Body: []byte("notes")}},
			},
		},
	})

	_, err := Run(context.Background(), f.opts)
	require.NoError(t, err)
	require.Equal(t, []byte("notes"), f.read(t, "SWA5", "notes.pdf?v=2"))
}

func TestRunIsolatesDownloadFailures(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name: "SWA5",
			Path: "/sites/SWA5",
			Groups: [][]studienettest.Material{
				{
					{Path: "/files/SWA5/f1.pdf", Body: []byte("1")},
					{Path: "/files/SWA5/f2.pdf", Broken: true},
					{Path: "/files/SWA5/f3.pdf", Body: []byte("3")},
				},
			},
		},
		{
			Name: "DBS1",
			Path: "/sites/DBS1",
			Groups: [][]studienettest.Material{
				{{Path: "/files/DBS1/g1.pdf", Body: []byte("g")}},
			},
		},
	})

	report, err := Run(context.Background(), f.opts)
	require.NoError(t, err)

	require.Equal(t, []byte("1"), f.read(t, "SWA5", "f1.pdf"))
	require.Equal(t, []byte("3"), f.read(t, "SWA5", "f3.pdf"))
	require.Equal(t, []byte("g"), f.read(t, "DBS1", "g1.pdf"))

	require.Equal(t, 3, report.Saved())
	require.Equal(t, 1, report.Failed())
	require.Equal(t, []string{f.server.URL + "/files/SWA5/f2.pdf"}, report.Classes[0].FailedUrls)

	failed := f.infos("fetch failed")
	require.Len(t, failed, 1)
	require.Equal(t, f.server.URL+"/files/SWA5/f2.pdf", failed[0].Params[1])

	// the transport may retry the dropped request once on a fresh connection
	require.Equal(t, []string{
		"/files/SWA5/f1.pdf",
		"/files/SWA5/f2.pdf",
		"/files/SWA5/f3.pdf",
		"/files/DBS1/g1.pdf",
	}, slices.Compact(f.server.Fetched()))
}

func TestRunUnsafeClassName(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name:   "../escape",
			Path:   "/sites/escape",
			Groups: [][]studienettest.Material{{{Path: "/files/escape/f1.pdf", Body: []byte("x")}}},
		},
		{
			Name:   "DBS1",
			Path:   "/sites/DBS1",
			Groups: [][]studienettest.Material{{{Path: "/files/DBS1/g1.pdf", Body: []byte("g")}}},
		},
	})

	report, err := Run(context.Background(), f.opts)
	require.NoError(t, err)

	require.Equal(t, []string{f.server.URL + "/files/escape/f1.pdf"}, report.Classes[0].FailedUrls)
	require.Equal(t, []byte("g"), f.read(t, "DBS1", "g1.pdf"))
	require.Equal(t, []string{"/files/DBS1/g1.pdf"}, f.server.Fetched())

	exists, err := afero.Exists(f.fs, "/escape")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestRunFatalExtraction(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name: "SWA5",
			Path: "/sites/SWA5",
			Groups: [][]studienettest.Material{
				{{Path: "/files/SWA5/f1.pdf", Body: []byte("1")}},
			},
		},
		{
			Name: "DBS1",
			Path: "/sites/DBS1",
			Groups: [][]studienettest.Material{
				{{MissingCell: true}},
			},
		},
		{
			Name: "SEP2",
			Path: "/sites/SEP2",
			Groups: [][]studienettest.Material{
				{{Path: "/files/SEP2/s1.pdf", Body: []byte("s")}},
			},
		},
	})

	report, err := Run(context.Background(), f.opts)

	var extractErr *studienet.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	require.True(t, IsFatal(err))
	require.Equal(t, 1, f.browser.closes)

	require.Len(t, report.Classes, 2)
	require.Equal(t, 1, report.Saved())
	require.Equal(t, []string{"/files/SWA5/f1.pdf"}, f.server.Fetched())
}

func TestRunFatalLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.opts.Portal.LogonSelector = "#nsg-x2-logon-button"

	report, err := Run(context.Background(), f.opts)

	var authErr *studienet.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Empty(t, report.Classes)
	require.Equal(t, 1, f.browser.closes)
}

type cancellingFetcher struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingFetcher) FetchAndSave(ctx context.Context, link, cookie, destDir string) error {
	c.calls++
	c.cancel()
	return &download.DownloadError{Url: link, Err: fmt.Errorf("get: %w", context.Canceled)}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name: "SWA5",
			Path: "/sites/SWA5",
			Groups: [][]studienettest.Material{
				{{Path: "/files/SWA5/f1.pdf"}, {Path: "/files/SWA5/f2.pdf"}},
			},
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fetcher := &cancellingFetcher{cancel: cancel}
	f.opts.Fetcher = fetcher

	_, err := Run(ctx, f.opts)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, fetcher.calls)
	require.Equal(t, 1, f.browser.closes)
}

func TestRunOnly(t *testing.T) {
	f := newFixture(t, []studienettest.Class{
		{
			Name:   "SWA5 Software Architecture",
			Path:   "/sites/SWA5",
			Groups: [][]studienettest.Material{{{Path: "/files/SWA5/f1.pdf"}}},
		},
		{
			Name:   "DBS1 Databases",
			Path:   "/sites/DBS1",
			Groups: [][]studienettest.Material{{{Path: "/files/DBS1/g1.pdf"}}},
		},
	})
	f.opts.Only = []string{"software architecture"}

	report, err := Run(context.Background(), f.opts)
	require.NoError(t, err)
	require.Len(t, report.Classes, 1)
	require.Equal(t, "SWA5 Software Architecture", report.Classes[0].Name)
	require.Equal(t, []string{"/files/SWA5/f1.pdf"}, f.server.Fetched())
}

func TestIsFatal(t *testing.T) {
	table := []struct {
		input    error
		expected bool
	}{
		{input: nil, expected: false},
		{input: &download.DownloadError{Url: "u", Err: fmt.Errorf("eof")}, expected: false},
		{input: fmt.Errorf("class: %w", &download.DownloadError{Url: "u"}), expected: false},
		{input: &studienet.AuthError{Op: "login", Err: fmt.Errorf("x")}, expected: true},
		{input: &studienet.ExtractionError{Row: -1}, expected: true},
		{input: &download.DownloadError{Url: "u", Err: context.DeadlineExceeded}, expected: true},
		{input: fmt.Errorf("unknown"), expected: true},
	}
	for _, test := range table {
		require.Equal(t, test.expected, IsFatal(test.input), fmt.Sprint(test.input))
	}
}

func TestMatchClass(t *testing.T) {
	table := []struct {
		name     string
		filters  []string
		expected bool
	}{
		{name: "SWA5 Software Architecture", filters: nil, expected: true},
		{name: "SWA5 Software Architecture", filters: []string{"swa5"}, expected: true},
		{name: "SWA5 Software Architecture", filters: []string{" Software  Architecture "}, expected: true},
		{name: "SWA5 Software Architecture", filters: []string{"dbs1", "software"}, expected: true},
		{name: "SWA5 Software Architecture", filters: []string{"dbs1"}, expected: false},
		{name: "SWA5 Software Architecture", filters: []string{"  "}, expected: true},
	}
	for _, test := range table {
		require.Equal(t, test.expected, MatchClass(test.name, NormalizeFilters(test.filters)), test.filters)
	}
}

func TestReportRender(t *testing.T) {
	report := Report{Classes: []ClassReport{
		{Name: "SWA5", Materials: 3, Saved: 2, FailedUrls: []string{"https://x/f2.pdf"}},
		{Name: "DBS1", Materials: 1, Saved: 1},
	}}

	var out bytes.Buffer
	report.Render(&out)

	rendered := out.String()
	require.Contains(t, rendered, "SWA5")
	require.Contains(t, rendered, "DBS1")
	require.Contains(t, rendered, "https://x/f2.pdf")
	require.Contains(t, rendered, "TOTAL")

	out.Reset()
	Report{Classes: []ClassReport{{Name: "DBS1", Materials: 1, Saved: 1}}}.Render(&out)
	require.NotContains(t, out.String(), "FAILED URL")
}
