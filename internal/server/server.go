package server

import (
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"grabtab/internal/formatter"
	"grabtab/internal/scraper"
)

const maxFormMemory = 32 << 20

// Exporter runs one scrape-and-serialize request.
type Exporter interface {
	Export(ctx context.Context, opts scraper.Options) (scraper.Export, error)
}

// Server is the form front end over an Exporter.
type Server struct {
	exporter Exporter
	mux      *http.ServeMux
}

// New creates a Server with its routes registered.
func New(exporter Exporter) *Server {
	s := &Server{exporter: exporter, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /scrape", s.handleScrape)
	return s
}

// ServeHTTP logs and dispatches a request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("took", time.Since(start)).
		Msg("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>grabtab</title></head>
<body>
<h1>grabtab</h1>
<form method="post" action="/scrape">
  <p><label>URL <input name="url" type="url" required size="60"></label></p>
  <p><label>Selector (CSS or XPath) <input name="selector"></label></p>
  <p><label>Format <select name="format">{{range .Formats}}<option>{{.}}</option>{{end}}</select></label></p>
  <fieldset><legend>Rendering</legend>
    <label><input type="checkbox" name="dynamic" value="1"> render with a browser</label>
    <label>Wait selector <input name="wait_selector"></label>
    <label>Wait ms <input name="wait_ms" type="number" min="0"></label>
  </fieldset>
  <fieldset><legend>Pagination by query parameter</legend>
    <label>Parameter <input name="page_param"></label>
    <label>Start <input name="page_start" type="number"></label>
    <label>End <input name="page_end" type="number"></label>
  </fieldset>
  <fieldset><legend>Pagination by next link</legend>
    <label>Next selector <input name="next_selector"></label>
    <label>Max pages <input name="max_pages" type="number" min="0"></label>
  </fieldset>
  <p><label>Delay between pages (ms) <input name="delay_ms" type="number" min="0"></label></p>
  <p><button type="submit">Scrape</button></p>
</form>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, map[string]any{"Formats": formatter.Formats}); err != nil {
		log.Error().Err(err).Msg("failed to render index")
	}
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	// Browsers post urlencoded, curl -F posts multipart
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	format, err := formatter.Normalize(r.PostFormValue("format"))
	if err != nil {
		http.Error(w, "Invalid format", http.StatusBadRequest)
		return
	}

	url := r.PostFormValue("url")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		writeHTML(w, http.StatusBadRequest, "<h3>Invalid URL. Only http/https allowed.</h3>")
		return
	}

	opts := scraper.Options{
		URL:          url,
		Selector:     r.PostFormValue("selector"),
		Format:       format,
		Dynamic:      formBool(r.PostFormValue("dynamic")),
		WaitSelector: r.PostFormValue("wait_selector"),
		WaitMS:       formInt(r.PostFormValue("wait_ms")),
		PageParam:    r.PostFormValue("page_param"),
		PageStart:    formInt(r.PostFormValue("page_start")),
		PageEnd:      formInt(r.PostFormValue("page_end")),
		NextSelector: r.PostFormValue("next_selector"),
		MaxPages:     formInt(r.PostFormValue("max_pages")),
		DelayMS:      formInt(r.PostFormValue("delay_ms")),
	}

	out, err := s.exporter.Export(r.Context(), opts)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scraper.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		log.Warn().Err(err).Str("url", url).Msg("scrape failed")
		writeHTML(w, status, "<h3>Scrape failed:</h3><pre>"+html.EscapeString(err.Error())+"</pre>")
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+out.Filename)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// formBool accepts 1, true, on and yes in any case.
func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// formInt parses an optional integer; blank or non-numeric input is unset.
func formInt(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}
