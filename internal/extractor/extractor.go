package extractor

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"grabtab/internal/table"
)

// DefaultLimit caps the number of candidate elements read by the whole-page fallback.
const DefaultLimit = 1000

// NoMatchMessage is the message row returned when selected elements carry no content.
const NoMatchMessage = "No content matched the selector."

var contentCandidates = cascadia.MustCompile("article, main, section, h1, h2, h3, h4, p, li, a")

var tableSelector = cascadia.MustCompile("table")

// Extractor turns page markup into a table.Result.
type Extractor struct {
	selector string
	limit    int
}

// New creates an Extractor. An empty selector means whole-page extraction.
func New(selector string) *Extractor {
	return &Extractor{selector: strings.TrimSpace(selector), limit: DefaultLimit}
}

// WithLimit overrides the whole-page candidate cap.
func (e *Extractor) WithLimit(n int) *Extractor {
	if n > 0 {
		e.limit = n
	}
	return e
}

// Parse builds a document from markup.
func Parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// Extract parses markup and classifies it.
func (e *Extractor) Extract(markup, baseURL string) (table.Result, error) {
	doc, err := Parse(markup)
	if err != nil {
		return table.Result{}, err
	}
	return e.FromDocument(doc, baseURL)
}

// FromDocument classifies an already parsed document. The first matching tier wins:
// tables inside the selection, content rows of the selection, then the whole page.
func (e *Extractor) FromDocument(doc *goquery.Document, baseURL string) (table.Result, error) {
	if e.selector != "" {
		selected, err := Select(doc, e.selector)
		if err != nil {
			return table.Result{}, err
		}
		if selected.Length() > 0 {
			if tables := parseTables(tablesWithin(doc, selected)); len(tables) > 0 {
				log.Debug().Str("tier", "selector-tables").Int("tables", len(tables)).Msg("extracted")
				return table.Collection(table.Indexed(tables)), nil
			}
			rows := contentRows(selected.Nodes, baseURL)
			log.Debug().Str("tier", "selector-content").Int("rows", rows.Len()).Msg("extracted")
			if rows.Empty() {
				return table.Single(table.Message(NoMatchMessage)), nil
			}
			return table.Single(rows), nil
		}
		log.Debug().Str("selector", e.selector).Msg("selector matched nothing, using whole page")
	}
	return e.wholePage(doc, baseURL), nil
}

func (e *Extractor) wholePage(doc *goquery.Document, baseURL string) table.Result {
	if tables := parseTables(doc.FindMatcher(tableSelector).Nodes); len(tables) > 0 {
		log.Debug().Str("tier", "page-tables").Int("tables", len(tables)).Msg("extracted")
		return table.Collection(table.Indexed(tables))
	}

	candidates := doc.FindMatcher(contentCandidates).Nodes
	if len(candidates) > e.limit {
		candidates = candidates[:e.limit]
	}
	rows := contentRows(candidates, baseURL)
	if !rows.Empty() {
		log.Debug().Str("tier", "page-content").Int("rows", rows.Len()).Msg("extracted")
		return table.Single(rows)
	}

	log.Debug().Str("tier", "page-text").Msg("extracted")
	t := table.New("text")
	t.Append(table.Str(selectionText(doc.Selection)))
	return table.Single(t)
}

// tablesWithin returns, in document order, every table that is selected or sits inside a selected element.
func tablesWithin(doc *goquery.Document, selected *goquery.Selection) []*html.Node {
	set := make(map[*html.Node]bool, len(selected.Nodes))
	for _, n := range selected.Nodes {
		set[n] = true
	}
	var out []*html.Node
	for _, t := range doc.FindMatcher(tableSelector).Nodes {
		for p := t; p != nil; p = p.Parent {
			if set[p] {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
