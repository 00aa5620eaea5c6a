package paginator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"grabtab/internal/extractor"
	"grabtab/internal/fetcher"
	"grabtab/internal/table"
)

// PageSource fetches one page.
type PageSource interface {
	Fetch(ctx context.Context, url string) (fetcher.Page, error)
}

// QueryParam walks pages by appending param=p for p in [Start, End].
type QueryParam struct {
	Param string
	Start int
	End   int
}

// NextLink follows the href of the first element matching Selector.
type NextLink struct {
	Selector string
	// MaxPages caps the number of visited pages; 0 means no cap.
	MaxPages int
}

// Request selects a pagination strategy. With both set, QueryParam wins.
type Request struct {
	QueryParam *QueryParam
	NextLink   *NextLink
	// Delay pauses between page fetches.
	Delay time.Duration
}

// Active reports whether any strategy is configured.
func (r Request) Active() bool {
	return r.QueryParam != nil || r.NextLink != nil
}

// Paginator drives fetch and extract over a sequence of pages.
type Paginator struct {
	source    PageSource
	extractor *extractor.Extractor
}

// New creates a Paginator.
func New(source PageSource, ex *extractor.Extractor) *Paginator {
	return &Paginator{source: source, extractor: ex}
}

// Paginate fetches url under req and merges every page into one result.
// Without a strategy the single page result is returned unchanged.
func (p *Paginator) Paginate(ctx context.Context, url string, req Request) (table.Result, error) {
	switch {
	case req.QueryParam != nil:
		if req.NextLink != nil {
			log.Debug().Msg("both pagination strategies given, using query parameter")
		}
		return p.byQueryParam(ctx, url, *req.QueryParam, req.Delay)
	case req.NextLink != nil:
		return p.byNextLink(ctx, url, *req.NextLink, req.Delay)
	default:
		page, err := p.source.Fetch(ctx, url)
		if err != nil {
			return table.Result{}, err
		}
		return p.extractor.Extract(page.HTML, page.URL)
	}
}

// PageURL appends param=page to url, joining with & when url already has a query.
func PageURL(url, param string, page int) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + param + "=" + strconv.Itoa(page)
}

func (p *Paginator) byQueryParam(ctx context.Context, url string, q QueryParam, delay time.Duration) (table.Result, error) {
	var acc accumulator
	for n := q.Start; n <= q.End; n++ {
		target := PageURL(url, q.Param, n)
		log.Debug().Str("strategy", "query").Int("page", n).Str("url", target).Msg("page")

		page, err := p.source.Fetch(ctx, target)
		if err != nil {
			return table.Result{}, fmt.Errorf("failed to fetch page %d: %w", n, err)
		}
		res, err := p.extractor.Extract(page.HTML, page.URL)
		if err != nil {
			return table.Result{}, fmt.Errorf("failed to extract page %d: %w", n, err)
		}
		acc.add(n, res)

		if n < q.End {
			pause(ctx, delay)
		}
	}
	return acc.result(), nil
}

func (p *Paginator) byNextLink(ctx context.Context, url string, nl NextLink, delay time.Duration) (table.Result, error) {
	var acc accumulator
	visited := map[string]bool{}
	current := url

	for count := 1; nl.MaxPages <= 0 || count <= nl.MaxPages; count++ {
		log.Debug().Str("strategy", "next").Int("page", count).Str("url", current).Msg("page")

		page, err := p.source.Fetch(ctx, current)
		if err != nil {
			return table.Result{}, fmt.Errorf("failed to fetch page %d: %w", count, err)
		}
		visited[current] = true
		visited[page.URL] = true

		doc, err := extractor.Parse(page.HTML)
		if err != nil {
			return table.Result{}, err
		}
		res, err := p.extractor.FromDocument(doc, page.URL)
		if err != nil {
			return table.Result{}, fmt.Errorf("failed to extract page %d: %w", count, err)
		}
		acc.add(count, res)

		next, reason := nextURL(doc, nl.Selector, page.URL)
		if next == "" || visited[next] {
			if reason == "" {
				reason = "already visited"
			}
			log.Debug().Str("reason", reason).Int("pages", count).Msg("pagination stopped")
			break
		}
		if nl.MaxPages > 0 && count >= nl.MaxPages {
			log.Debug().Str("reason", "max pages").Int("pages", count).Msg("pagination stopped")
			break
		}
		current = next
		pause(ctx, delay)
	}
	return acc.result(), nil
}

// nextURL resolves the href of the first element matching selector against base.
func nextURL(doc *goquery.Document, selector, base string) (string, string) {
	sel, err := extractor.Select(doc, selector)
	if err != nil {
		return "", "invalid selector"
	}
	first := sel.First()
	if first.Length() == 0 {
		return "", "no next element"
	}
	href, ok := first.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", "next element has no href"
	}
	return extractor.Resolve(base, href), ""
}

// pause sleeps for d unless ctx ends first. It never fails.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type pageResult struct {
	label int
	res   table.Result
}

// accumulator merges per-page results in visit order.
type accumulator struct {
	pages []pageResult
	named bool
}

func (a *accumulator) add(label int, res table.Result) {
	if res.Kind() == table.KindNamed {
		a.named = true
	}
	a.pages = append(a.pages, pageResult{label: label, res: res})
}

// result builds the aggregate: a page-prefixed collection once any page was a
// collection, otherwise one table with a leading page column.
func (a *accumulator) result() table.Result {
	if a.named {
		out := table.NewNamed()
		for _, p := range a.pages {
			if n, ok := p.res.Named(); ok {
				n.Each(func(key string, t *table.Table) {
					out.Set(fmt.Sprintf("p%d_%s", p.label, key), t)
				})
				continue
			}
			if t, ok := p.res.Table(); ok {
				out.Set(fmt.Sprintf("p%d_rows", p.label), t)
			}
		}
		return table.Collection(out)
	}

	var parts []*table.Table
	rows := 0
	for _, p := range a.pages {
		t, ok := p.res.Table()
		if !ok {
			continue
		}
		parts = append(parts, t.WithLeading("page", table.Str(strconv.Itoa(p.label))))
		rows += t.Len()
	}
	if rows == 0 {
		return table.Single(table.NoData())
	}
	return table.Single(table.Concat(parts...))
}
