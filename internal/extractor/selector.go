package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// IsXPath reports whether a selector is an XPath expression rather than CSS.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}

// ValidateSelector checks that a CSS or XPath selector compiles.
func ValidateSelector(selector string) error {
	s := strings.TrimSpace(selector)
	if s == "" {
		return nil
	}
	if IsXPath(s) {
		if _, err := xpath.Compile(s); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", s, err)
		}
		return nil
	}
	if _, err := cascadia.Compile(s); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", s, err)
	}
	return nil
}

// Select returns the elements of doc matching selector, in document order.
func Select(doc *goquery.Document, selector string) (*goquery.Selection, error) {
	s := strings.TrimSpace(selector)
	if IsXPath(s) {
		if len(doc.Nodes) == 0 {
			return doc.Selection.FindNodes(), nil
		}
		nodes, err := htmlquery.QueryAll(doc.Nodes[0], s)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", s, err)
		}
		elements := nodes[:0]
		for _, n := range nodes {
			if n.Type == html.ElementNode {
				elements = append(elements, n)
			}
		}
		return doc.Selection.FindNodes(elements...), nil
	}

	m, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", s, err)
	}
	return doc.FindMatcher(m), nil
}
