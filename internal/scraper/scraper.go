package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"grabtab/internal/extractor"
	"grabtab/internal/fetcher"
	"grabtab/internal/formatter"
	"grabtab/internal/paginator"
	"grabtab/internal/render"
	"grabtab/internal/table"
)

// ErrInvalidInput is returned before any network activity for rejected parameters.
var ErrInvalidInput = errors.New("invalid input")

// Options are the parameters of one scrape request. Nil pointers are unset.
type Options struct {
	URL      string
	Selector string
	Format   string

	Dynamic      bool
	WaitSelector string
	WaitMS       *int

	PageParam string
	PageStart *int
	PageEnd   *int

	NextSelector string
	MaxPages     *int

	DelayMS *int
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Validate checks o without touching the network.
func (o Options) Validate() error {
	if !strings.HasPrefix(o.URL, "http://") && !strings.HasPrefix(o.URL, "https://") {
		return invalid("only http/https URLs are allowed: %q", o.URL)
	}
	if u, err := url.Parse(o.URL); err != nil || u.Host == "" {
		return invalid("malformed URL %q", o.URL)
	}
	if o.Format != "" {
		if _, err := formatter.Normalize(o.Format); err != nil {
			return err
		}
	}

	set := 0
	if strings.TrimSpace(o.PageParam) != "" {
		set++
	}
	if o.PageStart != nil {
		set++
	}
	if o.PageEnd != nil {
		set++
	}
	if set != 0 && set != 3 {
		return invalid("page_param, page_start and page_end must be given together")
	}

	for name, v := range map[string]*int{"wait_ms": o.WaitMS, "max_pages": o.MaxPages, "delay_ms": o.DelayMS} {
		if v != nil && *v < 0 {
			return invalid("%s must not be negative", name)
		}
	}

	if err := extractor.ValidateSelector(o.Selector); err != nil {
		return invalid("selector: %v", err)
	}
	if err := extractor.ValidateSelector(o.NextSelector); err != nil {
		return invalid("next_selector: %v", err)
	}
	return nil
}

// Pagination returns the pagination request described by o.
func (o Options) Pagination() paginator.Request {
	var req paginator.Request
	if p := strings.TrimSpace(o.PageParam); p != "" && o.PageStart != nil && o.PageEnd != nil {
		req.QueryParam = &paginator.QueryParam{Param: p, Start: *o.PageStart, End: *o.PageEnd}
	}
	if s := strings.TrimSpace(o.NextSelector); s != "" {
		req.NextLink = &paginator.NextLink{Selector: s, MaxPages: deref(o.MaxPages)}
	}
	req.Delay = millis(o.DelayMS)
	return req
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func millis(v *int) time.Duration {
	return time.Duration(deref(v)) * time.Millisecond
}

// Scraper runs requests against one deployment configuration.
type Scraper struct {
	cfg      fetcher.Config
	renderer render.Renderer
}

// New creates a Scraper. renderer may be nil.
func New(cfg fetcher.Config, renderer render.Renderer) *Scraper {
	return &Scraper{cfg: cfg, renderer: renderer}
}

// Scrape fetches, extracts and, when asked, paginates.
func (s *Scraper) Scrape(ctx context.Context, opts Options) (table.Result, error) {
	if err := opts.Validate(); err != nil {
		return table.Result{}, err
	}

	f := fetcher.New(s.cfg, s.renderer, fetcher.Options{
		Dynamic:      opts.Dynamic,
		WaitSelector: strings.TrimSpace(opts.WaitSelector),
		Wait:         millis(opts.WaitMS),
	})
	if opts.Dynamic && !f.RenderAllowed() {
		log.Debug().Bool("constrained", s.cfg.Constrained).Msg("rendering unavailable, using plain fetch")
	}

	p := paginator.New(f, extractor.New(opts.Selector))
	res, err := p.Paginate(ctx, opts.URL, opts.Pagination())
	if err != nil {
		return table.Result{}, fmt.Errorf("failed to scrape %s: %w", opts.URL, err)
	}
	log.Debug().Str("shape", res.Kind().String()).Int("rows", res.Rows()).Msg("scraped")
	return res, nil
}

// Export is a serialized scrape result.
type Export struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Export scrapes and serializes in opts.Format.
func (s *Scraper) Export(ctx context.Context, opts Options) (Export, error) {
	format, err := formatter.Normalize(opts.Format)
	if err != nil {
		return Export{}, err
	}
	opts.Format = format

	res, err := s.Scrape(ctx, opts)
	if err != nil {
		return Export{}, err
	}
	data, err := formatter.Format(res, format)
	if err != nil {
		return Export{}, fmt.Errorf("failed to serialize: %w", err)
	}
	return Export{
		Data:        data,
		ContentType: formatter.ContentType(format),
		Filename:    formatter.Filename(format),
	}, nil
}
