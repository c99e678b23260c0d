package htmlutil

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var whitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText strips non-printable characters and collapses whitespace.
func NormalizeText(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = removeNonPrintable(s)
	return strings.Trim(s, " ")
}

type Anchor struct {
	Name string
	Url  *url.URL
}

// GetAnchor reads the visible text and the href of an anchor node, the href is resolved
// against `base` the way a browser resolves `anchor.href`.
func GetAnchor(base *url.URL, node *html.Node) (Anchor, error) {
	href := ""
	hasHref := false
	for _, a := range node.Attr {
		if a.Key == "href" {
			href = a.Val
			hasHref = true
			break
		}
	}
	if !hasHref {
		return Anchor{}, fmt.Errorf("anchor has no href")
	}

	link, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return Anchor{}, err
	}
	if base != nil {
		link = base.ResolveReference(link)
	}

	return Anchor{
		Name: NormalizeText(GetText(node)),
		Url:  link,
	}, nil
}

// GetAnchors is GetAnchor over a whole selection, anchors that cannot be parsed are skipped.
func GetAnchors(base *url.URL, sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		a, err := GetAnchor(base, n)
		if err != nil {
			continue
		}
		anchors = append(anchors, a)
	}
	return anchors
}
