package extractor

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"grabtab/internal/table"
)

// ContentColumns is the fixed schema of content rows.
var ContentColumns = []string{"tag", "text", "href", "src", "title", "aria_label", "classes"}

var invisible = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// normalize collapses every whitespace run to a single space and trims the ends.
func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// visibleText returns the whitespace-collapsed text under n, skipping script-like elements.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		switch cur.Type {
		case html.TextNode:
			b.WriteString(cur.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			if invisible[cur.Data] {
				return
			}
		case html.CommentNode:
			return
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalize(b.String())
}

func selectionText(s *goquery.Selection) string {
	parts := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if t := visibleText(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Resolve joins ref against base. Unparseable inputs return ref unchanged.
func Resolve(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || base == "" {
		return r.String()
	}
	return b.ResolveReference(r).String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// contentRow builds one content row for n. ok is false when every field besides the tag is empty.
func contentRow(n *html.Node, baseURL string) (row []table.Cell, ok bool) {
	text := visibleText(n)
	href, _ := attr(n, "href")
	src, _ := attr(n, "src")
	title, _ := attr(n, "title")
	aria, _ := attr(n, "aria-label")
	classes := ""
	if c, has := attr(n, "class"); has {
		classes = strings.Join(strings.Fields(c), " ")
	}

	href = Resolve(baseURL, href)
	src = Resolve(baseURL, src)
	if text == "" && href == "" && src == "" && title == "" && aria == "" && classes == "" {
		return nil, false
	}

	return []table.Cell{
		table.Str(n.Data),
		table.Str(text),
		table.OptStr(href),
		table.OptStr(src),
		table.OptStr(title),
		table.OptStr(aria),
		table.OptStr(classes),
	}, true
}

// contentRows builds content rows for every node, dropping empty ones.
func contentRows(nodes []*html.Node, baseURL string) *table.Table {
	t := table.New(ContentColumns...)
	for _, n := range nodes {
		if row, ok := contentRow(n, baseURL); ok {
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}
