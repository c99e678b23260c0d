package telemetry

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorderAPI()
	scoped := NewScopedAPI("catalog", rec)

	scoped.ReportBroken("list-classes", "missing anchor")
	scoped.ReportWarning("list-materials")
	scoped.ReportCount("materials", 4)
	scoped.ReportInfo("found materials", "count", 4)

	broken := rec.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "catalog: list-classes", broken[0].Id)
	require.Equal(t, []any{"missing anchor"}, broken[0].Params)

	require.Equal(t, "catalog: list-materials", rec.Reports("warning")[0].Id)
	require.Equal(t, []any{int64(4)}, rec.Reports("count")[0].Params)

	info := rec.Reports("info")
	require.Len(t, info, 1)
	require.Equal(t, "found materials", info[0].Id)
	require.Len(t, rec.Reports(""), 4)
}

func TestSlogAPI(t *testing.T) {
	var out bytes.Buffer
	api := NewSlogAPI(&out, SlogOptions{})

	api.ReportDebug("hidden")
	api.ReportInfo("fetching file", "url", "https://x/f1.pdf")
	api.ReportBroken("download.fetch-and-save", "boom")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "run_id=")
	require.Contains(t, lines[0], "url=https://x/f1.pdf")
	require.Contains(t, lines[1], "id=download.fetch-and-save")
	require.Contains(t, lines[1], "params.0=boom")

	out.Reset()
	verbose := NewSlogAPI(&out, SlogOptions{Verbose: true})
	verbose.ReportDebug("shown")
	require.Contains(t, out.String(), "shown")
}
