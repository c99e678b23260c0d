package htmlutil

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
		<ul>
			<li><a href="/sites/SWA5">  SWA5
				 Software	Architecture </a></li>
			<li><a href="https://other.host/DBS1"><b>DBS1</b></a></li>
			<li><a>no href</a></li>
			<li><a href="relative/path.pdf">notes</a></li>
		</ul>
	`))
	require.NoError(t, err)

	base, err := url.Parse("https://studienet.example/Pages/All_classes.aspx")
	require.NoError(t, err)

	anchors := GetAnchors(base, doc.Find("a"))
	require.Len(t, anchors, 3)

	require.Equal(t, "SWA5 Software Architecture", anchors[0].Name)
	require.Equal(t, "https://studienet.example/sites/SWA5", anchors[0].Url.String())

	require.Equal(t, "DBS1", anchors[1].Name)
	require.Equal(t, "https://other.host/DBS1", anchors[1].Url.String())

	require.Equal(t, "notes", anchors[2].Name)
	require.Equal(t, "https://studienet.example/Pages/relative/path.pdf", anchors[2].Url.String())
}

func TestGetAnchorWithoutHref(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<a>nothing</a>`))
	require.NoError(t, err)

	_, err = GetAnchor(nil, doc.Find("a").Nodes[0])
	require.Error(t, err)
}

func TestNormalizeText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "SWA5", expected: "SWA5"},
		{input: "  SWA5\n", expected: "SWA5"},
		{input: "Software \n\t Architecture", expected: "Software Architecture"},
		{input: "a\u0000b", expected: "ab"},
	}

	for _, row := range table {
		require.Equal(t, row.expected, NormalizeText(row.input))
	}
}
