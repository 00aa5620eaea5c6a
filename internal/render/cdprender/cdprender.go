package cdprender

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"grabtab/internal/extractor"
	"grabtab/internal/render"
)

func init() {
	render.Register("chromedp", func(cfg render.Config) render.Renderer {
		return NewRenderer(cfg)
	})
}

// Renderer renders pages with chromedp. Every call starts and cancels its own allocator.
type Renderer struct {
	cfg render.Config
}

// NewRenderer creates a chromedp Renderer.
func NewRenderer(cfg render.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

func (r *Renderer) allocatorOptions(opts render.Options) []chromedp.ExecAllocatorOption {
	out := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("headless", r.cfg.Headless),
	)
	if r.cfg.NoSandbox {
		out = append(out, chromedp.NoSandbox)
	}
	if r.cfg.ProxyURL != "" {
		out = append(out, chromedp.ProxyServer(r.cfg.ProxyURL))
	}
	if r.cfg.Bin != "" {
		out = append(out, chromedp.ExecPath(r.cfg.Bin))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	return out
}

// Render navigates to url, applies the configured wait, and returns the document's outer HTML.
func (r *Renderer) Render(ctx context.Context, url string, opts render.Options) (string, string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions(opts)...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx); err != nil {
		return "", "", fmt.Errorf("failed to start browser: %w", err)
	}

	navCtx := browserCtx
	if opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(browserCtx, opts.NavigationTimeout)
		defer cancel()
	}
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return "", "", fmt.Errorf("failed to navigate: %w", err)
	}

	switch {
	case opts.WaitSelector != "":
		waitCtx, cancel := context.WithTimeout(browserCtx, opts.SelectorTimeout)
		err := chromedp.Run(waitCtx, chromedp.WaitReady(opts.WaitSelector, queryBy(opts.WaitSelector)))
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("selector", opts.WaitSelector).Msg("wait selector not found, continuing")
		}
	case opts.Wait > 0:
		if err := chromedp.Run(browserCtx, chromedp.Sleep(opts.Wait)); err != nil {
			return "", "", fmt.Errorf("failed to wait: %w", err)
		}
	}

	var markup, location string
	if err := chromedp.Run(browserCtx,
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return "", "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	return markup, location, nil
}

// queryBy picks XPath evaluation for selectors starting with / or (.
func queryBy(selector string) chromedp.QueryOption {
	if extractor.IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
