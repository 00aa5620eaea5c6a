package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grabtab/internal/render"
)

type stubRenderer struct {
	calls int
	opts  render.Options
	err   error
}

func (s *stubRenderer) Render(ctx context.Context, url string, opts render.Options) (string, string, error) {
	s.calls++
	s.opts = opts
	if s.err != nil {
		return "", "", s.err
	}
	return "<html><body>rendered</body></html>", url + "#rendered", nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>" + r.UserAgent() + "</body></html>"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPlainFetch(t *testing.T) {
	srv := newServer(t)

	f := New(Config{}, nil, Options{})
	page, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, DefaultUserAgent)
	assert.Equal(t, srv.URL+"/ok", page.URL)
}

func TestPlainFetchReportsRedirectTarget(t *testing.T) {
	srv := newServer(t)

	page, err := New(Config{}, nil, Options{}).Fetch(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/ok", page.URL)
}

func TestPlainFetchErrorStatus(t *testing.T) {
	srv := newServer(t)

	_, err := New(Config{}, nil, Options{}).Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

func TestPlainFetchReadsWholeBody(t *testing.T) {
	size := 11 << 20
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(strings.Repeat("x", size)))
	}))
	t.Cleanup(srv.Close)

	page, err := New(Config{}, nil, Options{}).Fetch(context.Background(), srv.URL+"/big")
	require.NoError(t, err)
	assert.Len(t, page.HTML, size)
}

func TestPlainFetchThroughProxy(t *testing.T) {
	hits := make(chan string, 4)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.URL.String()
		_, _ = w.Write([]byte("<html><body>via proxy</body></html>"))
	}))
	t.Cleanup(proxy.Close)

	page, err := New(Config{Proxy: proxy.URL}, nil, Options{}).Fetch(context.Background(), "http://grabtab.test/list")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "via proxy")
	assert.Equal(t, "http://grabtab.test/list", page.URL)
	require.Len(t, hits, 1)
	assert.Equal(t, "http://grabtab.test/list", <-hits)

	_, err = New(Config{Proxy: "://nope"}, nil, Options{}).Fetch(context.Background(), "http://grabtab.test/list")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetch))
}

func TestRenderPreferredWhenDynamic(t *testing.T) {
	srv := newServer(t)
	stub := &stubRenderer{}

	f := New(Config{}, stub, Options{Dynamic: true, WaitSelector: "#app", Wait: 500 * time.Millisecond})
	page, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)

	assert.Equal(t, 1, stub.calls)
	assert.Contains(t, page.HTML, "rendered")
	assert.Equal(t, srv.URL+"/ok#rendered", page.URL)
	assert.Equal(t, "#app", stub.opts.WaitSelector)
	assert.Equal(t, 500*time.Millisecond, stub.opts.SelectorTimeout, "wait doubles as the selector timeout")
	assert.Zero(t, stub.opts.Wait)
	assert.Equal(t, DefaultNavigationTimeout, stub.opts.NavigationTimeout)
}

func TestRenderWaitWithoutSelector(t *testing.T) {
	stub := &stubRenderer{}
	f := New(Config{}, stub, Options{Dynamic: true, Wait: time.Second})
	_, err := f.Fetch(context.Background(), "http://example.invalid/")
	require.NoError(t, err)

	assert.Equal(t, time.Second, stub.opts.Wait)
	assert.Equal(t, DefaultSelectorTimeout, stub.opts.SelectorTimeout)
}

func TestRenderFailureFallsBackOnce(t *testing.T) {
	srv := newServer(t)
	stub := &stubRenderer{err: errors.New("no browser")}

	page, err := New(Config{}, stub, Options{Dynamic: true}).Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Contains(t, page.HTML, DefaultUserAgent)
}

func TestRenderSkipped(t *testing.T) {
	srv := newServer(t)

	tests := []struct {
		name string
		cfg  Config
		opts Options
	}{
		{"not requested", Config{}, Options{}},
		{"constrained environment", Config{Constrained: true}, Options{Dynamic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRenderer{}
			f := New(tt.cfg, stub, tt.opts)
			assert.False(t, f.RenderAllowed())

			_, err := f.Fetch(context.Background(), srv.URL+"/ok")
			require.NoError(t, err)
			assert.Zero(t, stub.calls)
		})
	}
}

func TestCustomUserAgent(t *testing.T) {
	srv := newServer(t)

	page, err := New(Config{UserAgent: "grabtab-test"}, nil, Options{}).Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, page.HTML, "grabtab-test")
}
