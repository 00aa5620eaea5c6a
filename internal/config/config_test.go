package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grabtab/internal/fetcher"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"VERCEL", "GRABTAB_CONSTRAINED", "GRABTAB_RENDERER", "GRABTAB_PROXY", "GRABTAB_BROWSER_BIN", "GRABTAB_CACHE_DIR", "PORT", "GRABTAB_LISTEN"} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Constrained)
	assert.Equal(t, "rod", cfg.Renderer)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 3*time.Second, cfg.SelectorTimeout)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "grabtab.yaml")
	content := `
renderer: chromedp
headless: false
noSandbox: true
browserBin: /opt/chromium/chrome
proxy: http://127.0.0.1:3128
httpTimeout: 5s
selectorTimeout: 1500ms
cacheDir: /tmp/grabtab-cache
respectRobots: true
listen: 127.0.0.1:9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chromedp", cfg.Renderer)
	assert.False(t, cfg.Headless)
	assert.True(t, cfg.NoSandbox)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.SelectorTimeout)
	assert.Equal(t, fetcher.DefaultNavigationTimeout, cfg.NavigationTimeout, "unset keys keep defaults")
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)

	fc := cfg.Fetcher()
	assert.Equal(t, "/tmp/grabtab-cache", fc.CacheDir)
	assert.True(t, fc.RespectRobots)
	assert.Equal(t, "http://127.0.0.1:3128", fc.Proxy, "plain fetches use the proxy too")

	rc := cfg.Render()
	assert.False(t, rc.Headless)
	assert.True(t, rc.NoSandbox)
	assert.Equal(t, "/opt/chromium/chrome", rc.Bin)
	assert.Equal(t, "http://127.0.0.1:3128", rc.ProxyURL)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("headless: [nope"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "vercel is constrained",
			env:  map[string]string{"VERCEL": "1"},
			check: func(t *testing.T, cfg Config) {
				assert.True(t, cfg.Constrained)
				assert.True(t, cfg.Fetcher().Constrained)
			},
		},
		{
			name:  "explicit constrained flag",
			env:   map[string]string{"GRABTAB_CONSTRAINED": "yes"},
			check: func(t *testing.T, cfg Config) { assert.True(t, cfg.Constrained) },
		},
		{
			name:  "falsy constrained flag",
			env:   map[string]string{"GRABTAB_CONSTRAINED": "0"},
			check: func(t *testing.T, cfg Config) { assert.False(t, cfg.Constrained) },
		},
		{
			name: "renderer proxy and cache",
			env:  map[string]string{"GRABTAB_RENDERER": "chromedp", "GRABTAB_PROXY": "http://127.0.0.1:7890", "GRABTAB_CACHE_DIR": "/var/cache/grabtab"},
			check: func(t *testing.T, cfg Config) {
				assert.Equal(t, "chromedp", cfg.Renderer)
				assert.Equal(t, "http://127.0.0.1:7890", cfg.Render().ProxyURL)
				assert.Equal(t, "/var/cache/grabtab", cfg.CacheDir)
			},
		},
		{
			name:  "browser binary",
			env:   map[string]string{"GRABTAB_BROWSER_BIN": "/usr/bin/chromium"},
			check: func(t *testing.T, cfg Config) { assert.Equal(t, "/usr/bin/chromium", cfg.Render().Bin) },
		},
		{
			name:  "port",
			env:   map[string]string{"PORT": "3000"},
			check: func(t *testing.T, cfg Config) { assert.Equal(t, ":3000", cfg.Listen) },
		},
		{
			name:  "listen beats port",
			env:   map[string]string{"PORT": "3000", "GRABTAB_LISTEN": "0.0.0.0:4000"},
			check: func(t *testing.T, cfg Config) { assert.Equal(t, "0.0.0.0:4000", cfg.Listen) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := Default()
			ApplyEnv(&cfg)
			tt.check(t, cfg)
		})
	}
}
