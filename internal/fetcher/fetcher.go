package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"

	"grabtab/internal/render"
)

// DefaultUserAgent is sent by the plain fetch path and, when set, by renderers.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const (
	DefaultTimeout           = 20 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultSelectorTimeout   = 3 * time.Second
)

// ErrFetch wraps every terminal fetch failure.
var ErrFetch = errors.New("fetch failed")

// Page is fetched markup and the URL it was finally served from.
type Page struct {
	HTML string
	URL  string
}

// Config holds deployment-level fetch settings.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	// Constrained disables rendering regardless of what a request asks for.
	Constrained bool
	// Proxy is used by the plain path as well as the renderers.
	Proxy         string
	CacheDir      string
	RespectRobots bool
}

// Options holds the rendering choices of one request.
type Options struct {
	Dynamic      bool
	WaitSelector string
	Wait         time.Duration
}

// Fetcher retrieves page markup, rendering it first when asked and allowed.
type Fetcher struct {
	cfg      Config
	renderer render.Renderer
	opts     Options
}

// New creates a Fetcher. renderer may be nil, which disables rendering.
func New(cfg Config, renderer render.Renderer, opts Options) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.SelectorTimeout <= 0 {
		cfg.SelectorTimeout = DefaultSelectorTimeout
	}
	return &Fetcher{cfg: cfg, renderer: renderer, opts: opts}
}

// RenderAllowed reports whether Fetch will attempt the rendering path.
func (f *Fetcher) RenderAllowed() bool {
	return f.opts.Dynamic && !f.cfg.Constrained && f.renderer != nil
}

// Fetch returns the markup of url. A failed render falls back to one plain GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Page, error) {
	if f.RenderAllowed() {
		page, err := f.render(ctx, url)
		if err == nil {
			log.Debug().Str("url", url).Str("path", "render").Str("final", page.URL).Int("bytes", len(page.HTML)).Msg("fetched")
			return page, nil
		}
		log.Warn().Err(err).Str("url", url).Msg("render failed, falling back to plain fetch")
	}

	page, err := f.plain(ctx, url)
	if err != nil {
		return Page{}, err
	}
	log.Debug().Str("url", url).Str("path", "plain").Str("final", page.URL).Int("bytes", len(page.HTML)).Msg("fetched")
	return page, nil
}

func (f *Fetcher) renderOptions() render.Options {
	opts := render.Options{
		WaitSelector:      f.opts.WaitSelector,
		SelectorTimeout:   f.cfg.SelectorTimeout,
		NavigationTimeout: f.cfg.NavigationTimeout,
		UserAgent:         f.cfg.UserAgent,
	}
	if opts.WaitSelector != "" {
		if f.opts.Wait > 0 {
			opts.SelectorTimeout = f.opts.Wait
		}
	} else {
		opts.Wait = f.opts.Wait
	}
	return opts
}

func (f *Fetcher) render(ctx context.Context, url string) (Page, error) {
	markup, final, err := f.renderer.Render(ctx, url, f.renderOptions())
	if err != nil {
		return Page{}, err
	}
	if final == "" {
		final = url
	}
	return Page{HTML: markup, URL: final}, nil
}

func (f *Fetcher) plain(ctx context.Context, url string) (Page, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.cfg.UserAgent),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		// pages are read whole, colly caps them at 10 MiB otherwise
		colly.MaxBodySize(0),
	)
	c.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.Proxy != "" {
		if err := c.SetProxy(f.cfg.Proxy); err != nil {
			return Page{}, fmt.Errorf("%w: invalid proxy %q: %w", ErrFetch, f.cfg.Proxy, err)
		}
	}
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	if f.cfg.CacheDir != "" {
		c.CacheDir = f.cfg.CacheDir
	}

	var page Page
	c.OnResponse(func(r *colly.Response) {
		page = Page{HTML: string(r.Body), URL: r.Request.URL.String()}
	})

	if err := c.Visit(url); err != nil {
		return Page{}, fmt.Errorf("%w: GET %s: %w", ErrFetch, url, err)
	}
	if page.URL == "" {
		return Page{}, fmt.Errorf("%w: GET %s: no response", ErrFetch, url)
	}
	return page, nil
}
