package rodrender

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"

	"grabtab/internal/browser"
	"grabtab/internal/extractor"
	"grabtab/internal/render"
)

func init() {
	render.Register("rod", func(cfg render.Config) render.Renderer {
		return NewRenderer(browser.Config{
			Headless:  cfg.Headless,
			NoSandbox: cfg.NoSandbox,
			ProxyURL:  cfg.ProxyURL,
			Bin:       cfg.Bin,
		})
	})
}

// Renderer renders pages with go-rod. Every call launches and tears down its own browser.
type Renderer struct {
	cfg browser.Config
}

// NewRenderer creates a rod Renderer.
func NewRenderer(cfg browser.Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Render navigates to url, waits for DOMContentLoaded and the configured wait, and returns the page HTML.
func (r *Renderer) Render(ctx context.Context, url string, opts render.Options) (string, string, error) {
	b, err := browser.New(ctx, r.cfg)
	if err != nil {
		return "", "", err
	}
	defer b.Close()

	page, err := b.NewPage()
	if err != nil {
		return "", "", err
	}
	defer page.Close()
	page = page.Context(ctx)

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			return "", "", fmt.Errorf("failed to set user agent: %w", err)
		}
	}

	nav := page
	if opts.NavigationTimeout > 0 {
		nav = page.Timeout(opts.NavigationTimeout)
	}
	wait := nav.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := nav.Navigate(url); err != nil {
		return "", "", fmt.Errorf("failed to navigate: %w", err)
	}
	wait()

	switch {
	case opts.WaitSelector != "":
		if err := waitElement(page.Timeout(opts.SelectorTimeout), opts.WaitSelector); err != nil {
			log.Debug().Err(err).Str("selector", opts.WaitSelector).Msg("wait selector not found, continuing")
		}
	case opts.Wait > 0:
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(opts.Wait):
		}
	}

	markup, err := page.HTML()
	if err != nil {
		return "", "", fmt.Errorf("failed to read page HTML: %w", err)
	}
	info, err := page.Info()
	if err != nil {
		return "", "", fmt.Errorf("failed to read page info: %w", err)
	}
	return markup, info.URL, nil
}

func waitElement(page *rod.Page, selector string) error {
	if extractor.IsXPath(selector) {
		_, err := page.ElementX(selector)
		return err
	}
	_, err := page.Element(selector)
	return err
}
