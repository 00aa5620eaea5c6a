package render

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Renderer loads a URL in a headless browser and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, url string, opts Options) (markup, finalURL string, err error)
}

// Options controls a single render.
type Options struct {
	// WaitSelector, when set, is awaited for at most SelectorTimeout. A timeout is not an error.
	WaitSelector    string
	SelectorTimeout time.Duration
	// Wait is a fixed pause used only when WaitSelector is empty.
	Wait              time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
}

// Config holds the browser launch settings shared by all engines.
type Config struct {
	Headless  bool
	NoSandbox bool
	ProxyURL  string
	// Bin is an explicit Chrome/Chromium binary; empty lets the engine locate one.
	Bin string
}

// Factory builds a Renderer for a launch configuration.
type Factory func(cfg Config) Renderer

var registry = map[string]Factory{}

// Register makes an engine available under name.
func Register(name string, f Factory) {
	registry[strings.ToLower(name)] = f
}

// Get returns the engine registered under name.
func Get(name string) (Factory, bool) {
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// New builds the named engine.
func New(name string, cfg Config) (Renderer, error) {
	f, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown renderer %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return f(cfg), nil
}

// Names lists registered engines.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
