package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"grabtab/internal/fetcher"
	"grabtab/internal/render"
)

// Config is the deployment-level configuration shared by the CLI and the server.
type Config struct {
	// Constrained disables browser rendering no matter what a request asks for.
	Constrained bool   `yaml:"constrained"`
	Renderer    string `yaml:"renderer"`
	Headless    bool   `yaml:"headless"`
	NoSandbox   bool   `yaml:"noSandbox"`
	Proxy       string `yaml:"proxy"`
	BrowserBin  string `yaml:"browserBin"`

	UserAgent         string        `yaml:"userAgent"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	SelectorTimeout   time.Duration `yaml:"selectorTimeout"`
	CacheDir          string        `yaml:"cacheDir"`
	RespectRobots     bool          `yaml:"respectRobots"`

	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Renderer:          "rod",
		Headless:          true,
		UserAgent:         fetcher.DefaultUserAgent,
		HTTPTimeout:       fetcher.DefaultTimeout,
		NavigationTimeout: fetcher.DefaultNavigationTimeout,
		SelectorTimeout:   fetcher.DefaultSelectorTimeout,
		Listen:            ":8080",
		LogLevel:          "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path (if any) and
// then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	ApplyEnv(&cfg)
	return cfg, nil
}

// ApplyEnv overlays the environment onto cfg.
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	// serverless hosts cannot start a browser
	if os.Getenv("VERCEL") != "" || truthy(os.Getenv("GRABTAB_CONSTRAINED")) {
		cfg.Constrained = true
	}
	if v := strings.TrimSpace(os.Getenv("GRABTAB_RENDERER")); v != "" {
		cfg.Renderer = v
	}
	if v := strings.TrimSpace(os.Getenv("GRABTAB_PROXY")); v != "" {
		cfg.Proxy = v
	}
	if v := strings.TrimSpace(os.Getenv("GRABTAB_BROWSER_BIN")); v != "" {
		cfg.BrowserBin = v
	}
	if v := strings.TrimSpace(os.Getenv("GRABTAB_CACHE_DIR")); v != "" {
		cfg.CacheDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.Listen = ":" + v
	}
	if v := strings.TrimSpace(os.Getenv("GRABTAB_LISTEN")); v != "" {
		cfg.Listen = v
	}
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// Fetcher returns the fetch settings.
func (c Config) Fetcher() fetcher.Config {
	return fetcher.Config{
		UserAgent:         c.UserAgent,
		Timeout:           c.HTTPTimeout,
		NavigationTimeout: c.NavigationTimeout,
		SelectorTimeout:   c.SelectorTimeout,
		Constrained:       c.Constrained,
		Proxy:             c.Proxy,
		CacheDir:          c.CacheDir,
		RespectRobots:     c.RespectRobots,
	}
}

// Render returns the renderer launch settings.
func (c Config) Render() render.Config {
	return render.Config{
		Headless:  c.Headless,
		NoSandbox: c.NoSandbox,
		ProxyURL:  c.Proxy,
		Bin:       c.BrowserBin,
	}
}
