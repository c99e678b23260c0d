package crawl

import (
	"io"
	"regexp"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ClassReport is what happened to the materials of one class.
type ClassReport struct {
	Name       string
	Materials  int
	Saved      int
	FailedUrls []string
}

type Report struct {
	Classes []ClassReport
}

func (r Report) Saved() int {
	total := 0
	for _, c := range r.Classes {
		total += c.Saved
	}
	return total
}

func (r Report) Failed() int {
	total := 0
	for _, c := range r.Classes {
		total += len(c.FailedUrls)
	}
	return total
}

// Render writes the report as a table, followed by a table of the failed urls if
// there are any.
func (r Report) Render(out io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Class", "Materials", "Saved", "Failed"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	materials := 0
	for _, c := range r.Classes {
		materials += c.Materials
		t.AppendRow(table.Row{c.Name, c.Materials, c.Saved, len(c.FailedUrls)})
	}
	t.AppendFooter(table.Row{"Total", materials, r.Saved(), r.Failed()})
	t.Render()

	if r.Failed() == 0 {
		return
	}

	failed := table.NewWriter()
	failed.SetOutputMirror(out)
	failed.SetStyle(table.StyleRounded)
	failed.AppendHeader(table.Row{"Class", "Failed url"})
	for _, c := range r.Classes {
		for _, link := range c.FailedUrls {
			failed.AppendRow(table.Row{c.Name, link})
		}
	}
	failed.Render()
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a class name and removes all of its whitespace so that
// "SWA5 Software  Architecture" and "swa5softwarearchitecture" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	return whitespaceRegex.ReplaceAllString(name, "")
}

// NormalizeFilters normalizes every filter and drops the ones left empty.
func NormalizeFilters(filters []string) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		f = NormalizeName(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// MatchClass reports whether any of the (normalized) filters is contained in the class
// name, no filters match everything.
func MatchClass(name string, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	name = NormalizeName(name)
	for _, f := range filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}
