package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"grabtab/internal/config"
	"grabtab/internal/render"
	_ "grabtab/internal/render/cdprender"
	_ "grabtab/internal/render/rodrender"
	"grabtab/internal/scraper"
	"grabtab/internal/server"
)

var version = "dev"

var (
	configPath   string
	verbose      bool
	rendererName string
	proxyURL     string
	showUI       bool

	selector     string
	outputFormat string
	outputFile   string
	dynamic      bool
	waitSelector string
	waitMS       int
	pageParam    string
	pageStart    int
	pageEnd      int
	nextSelector string
	maxPages     int
	delayMS      int

	listenAddr string
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var rootCmd = &cobra.Command{
		Use:     "grabtab [URL]",
		Short:   "Scrape tables and page content into CSV, XLSX, JSON or TSV",
		Version: version,
		Long: `grabtab fetches a web page, optionally rendering it in a headless browser,
extracts its tables (or the content of the elements a selector matches),
optionally walks several pages, and writes the result as csv, xlsx, json or txt.`,
		Example: `  # All tables of a page as CSV on stdout
  grabtab https://en.wikipedia.org/wiki/List_of_countries_by_population

  # Elements matched by a CSS selector, saved as a spreadsheet
  grabtab -s "div.result a" -o results.xlsx https://example.com/search?q=go

  # XPath selectors start with / or (
  grabtab -s "//table[@id='prices']" -f json https://example.com/prices

  # Query-parameter pagination: ?page=1 .. ?page=5, 500ms apart
  grabtab --page-param page --page-start 1 --page-end 5 --delay-ms 500 https://example.com/list

  # Follow the "next" link up to 10 pages, rendering each page first
  grabtab --dynamic --wait-selector "#items" --next-selector "a.next" --max-pages 10 https://example.com/items`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.Help()
				os.Exit(0)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setLogLevel()
		},
		RunE:         run,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	pf.StringVar(&rendererName, "renderer", "", "Browser engine for --dynamic (rod, chromedp)")
	pf.StringVarP(&proxyURL, "proxy", "p", "", "Proxy URL for page fetches and the browser (e.g. http://127.0.0.1:7890), defaults to GRABTAB_PROXY env var")
	pf.BoolVar(&showUI, "showui", false, "Show browser UI (disable headless mode)")

	addScrapeFlags(rootCmd)

	serveCmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the scrape form over HTTP",
		Args:         cobra.NoArgs,
		RunE:         serve,
		SilenceUsage: true,
	}
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from config, PORT or :8080)")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addScrapeFlags registers the per-request flags of the root command.
func addScrapeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&selector, "selector", "s", "", "CSS selector, or XPath when it starts with / or (")
	f.StringVarP(&outputFormat, "format", "f", "", "Output format (csv, xlsx, json, txt); inferred from -o when omitted, else csv")
	f.StringVarP(&outputFile, "output", "o", "", "Output file path (stdout for text formats when omitted)")
	f.BoolVar(&dynamic, "dynamic", false, "Render the page in a headless browser before extracting")
	f.StringVar(&waitSelector, "wait-selector", "", "With --dynamic, wait for this selector to appear")
	f.IntVar(&waitMS, "wait-ms", 0, "With --dynamic, selector wait timeout, or a fixed pause without --wait-selector")
	f.StringVar(&pageParam, "page-param", "", "Query parameter used for pagination")
	f.IntVar(&pageStart, "page-start", 0, "First page (inclusive)")
	f.IntVar(&pageEnd, "page-end", 0, "Last page (inclusive)")
	f.StringVar(&nextSelector, "next-selector", "", "Selector of the \"next page\" link")
	f.IntVar(&maxPages, "max-pages", 0, "Max pages to follow with --next-selector; 0 or unset means no limit, the walk still stops at a page already seen")
	f.IntVar(&delayMS, "delay-ms", 0, "Pause between page fetches in milliseconds")
}

func setLogLevel() {
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// loadConfig reads the config file and environment, then applies the shared flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if !verbose {
		if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	if rendererName != "" {
		cfg.Renderer = rendererName
	}
	if proxyURL != "" {
		cfg.Proxy = proxyURL
	}
	if showUI {
		cfg.Headless = false
	}
	return cfg, nil
}

// newScraper builds a Scraper; rendering is left out entirely in a constrained environment.
func newScraper(cfg config.Config) (*scraper.Scraper, error) {
	var r render.Renderer
	if !cfg.Constrained {
		var err error
		r, err = render.New(cfg.Renderer, cfg.Render())
		if err != nil {
			return nil, err
		}
	}
	return scraper.New(cfg.Fetcher(), r), nil
}

func run(cmd *cobra.Command, args []string) error {
	target := normalizeURL(args[0])

	// If output file is specified but format is not, infer format from file extension
	if outputFormat == "" && outputFile != "" {
		outputFormat = inferFormatFromExtension(outputFile)
	}
	if outputFormat == "" {
		outputFormat = "csv"
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := newScraper(cfg)
	if err != nil {
		return err
	}

	opts := scraper.Options{
		URL:          target,
		Selector:     selector,
		Format:       outputFormat,
		Dynamic:      dynamic,
		WaitSelector: waitSelector,
		WaitMS:       changedInt(cmd, "wait-ms", waitMS),
		PageParam:    pageParam,
		PageStart:    changedInt(cmd, "page-start", pageStart),
		PageEnd:      changedInt(cmd, "page-end", pageEnd),
		NextSelector: nextSelector,
		MaxPages:     changedInt(cmd, "max-pages", maxPages),
		DelayMS:      changedInt(cmd, "delay-ms", delayMS),
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sp := startSpinner("Scraping " + target)
	out, err := s.Export(ctx, opts)
	sp.Stop()
	if err != nil {
		return err
	}

	// Spreadsheets are never written to a terminal
	if outputFile == "" && strings.EqualFold(outputFormat, "xlsx") {
		outputFile = out.Filename
	}
	if outputFile == "" {
		_, err := os.Stdout.Write(out.Data)
		return err
	}
	if err := os.WriteFile(outputFile, out.Data, 0644); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Output written to: %s\n", outputFile)
	return nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	s, err := newScraper(cfg)
	if err != nil {
		return err
	}
	if cfg.Constrained {
		log.Info().Msg("constrained environment, browser rendering disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(s).ListenAndServe(ctx, cfg.Listen)
}

// changedInt returns a pointer to v only when the flag was given.
func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

type stopper interface{ Stop() }

type noSpinner struct{}

func (noSpinner) Stop() {}

// startSpinner shows progress on an interactive stderr that is not busy with debug logs.
func startSpinner(msg string) stopper {
	if verbose || !isatty.IsTerminal(os.Stderr.Fd()) {
		return noSpinner{}
	}
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + msg
	s.Start()
	return s
}

// inferFormatFromExtension infers output format from file extension
func inferFormatFromExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	case ".json":
		return "json"
	case ".txt", ".tsv":
		return "txt"
	default:
		return ""
	}
}

// normalizeURL normalizes URL, adds http:// if no protocol prefix
func normalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return rawURL
	}
	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") && !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return "http://" + rawURL
	}
	return rawURL
}
