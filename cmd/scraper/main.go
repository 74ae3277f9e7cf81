package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/browser"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"github.com/aluiziolira/go-scrape-catalog/pipeline"
	"github.com/aluiziolira/go-scrape-catalog/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup flushes partial
// output before the process ends.
func run() int {
	defaultCfg := config.DefaultConfig()
	startDefault := defaultCfg.StartURL
	if value, ok := config.EnvString("SCRAPER_START_URL"); ok {
		startDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	backendDefault := defaultCfg.Backend
	if value, ok := config.EnvString("SCRAPER_BACKEND"); ok {
		backendDefault = value
	}
	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("SCRAPER_MAX_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_MAX_PAGES: %v\n", err)
		return 1
	} else if ok {
		pagesDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	startURL := flag.String("start-url", startDefault, "Catalog listing URL to crawl")
	outputFile := flag.String("output", outputDefault, "Output file path; the extension follows the format")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	backend := flag.String("backend", backendDefault, "Browser backend: chrome or static")
	pagination := flag.String("pagination", defaultCfg.Pagination, "Pagination strategy: url or click")
	headless := flag.Bool("headless", defaultCfg.Headless, "Run Chrome without a window")
	userAgent := flag.String("user-agent", defaultCfg.UserAgent, "User-Agent header sent by the browser")
	maxPages := flag.Int("pages", pagesDefault, "Maximum listing pages to scrape (0 = all)")
	timeout := flag.Duration("timeout", defaultCfg.Timeout, "Bound for each element wait")
	navTimeout := flag.Duration("nav-timeout", defaultCfg.NavigationTimeout, "Bound for each page load")
	layoutFile := flag.String("layout", "", "JSON file overriding the default page locators")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.StartURL = *startURL
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Backend = strings.ToLower(*backend)
	cfg.Pagination = strings.ToLower(*pagination)
	cfg.Headless = *headless
	cfg.UserAgent = *userAgent
	cfg.MaxPages = *maxPages
	cfg.Timeout = *timeout
	cfg.NavigationTimeout = *navTimeout
	cfg.LayoutFile = *layoutFile
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	layout := parser.DefaultLayout()
	if cfg.LayoutFile != "" {
		loaded, err := parser.LoadLayout(cfg.LayoutFile)
		if err != nil {
			slog.Error("loading layout", slog.Any("error", err))
			return 1
		}
		layout = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, stopping after the current step")
	}()

	slog.Info("starting scrape",
		slog.String("start_url", cfg.StartURL),
		slog.String("backend", cfg.Backend),
		slog.String("pagination", cfg.Pagination),
		slog.Int("pages", cfg.MaxPages),
	)

	b, err := openBrowser(ctx, cfg)
	if err != nil {
		slog.Error("starting browser", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	s, err := scraper.NewScraper(cfg, b, layout)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		return 1
	}

	outputs, err := pipeline.OutputPaths(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("resolving output paths", slog.Any("error", err))
		return 1
	}
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(writer)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	if err := p.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		slog.Error("scraping failed", slog.Any("error", runErr))
		printSummary(result, outputs, p.GetMetrics())
		return 1
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		return 1
	}

	printSummary(result, outputs, p.GetMetrics())
	return 0
}

func openBrowser(ctx context.Context, cfg *config.Config) (browser.Browser, error) {
	switch cfg.Backend {
	case config.BackendStatic:
		return browser.NewStatic(browser.StaticOptions{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.NavigationTimeout,
		})
	case config.BackendChrome:
		return browser.NewChrome(ctx, browser.ChromeOptions{
			Headless:  cfg.Headless,
			UserAgent: cfg.UserAgent,
		})
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

func printSummary(result *models.ScraperResult, outputs []string, metrics map[string]interface{}) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Pages:         %d of %d\n", result.PageCount, result.PagesPlanned)
	fmt.Printf("  Records:       %d\n", result.RecordCount)
	if len(result.MissingFields) > 0 {
		fmt.Printf("  Missing:       %v\n", result.MissingFields)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if duration.Seconds() > 0 {
		fmt.Printf("  Records/sec:   %.2f\n", float64(result.RecordCount)/duration.Seconds())
	}
	fmt.Printf("  Output files:  %s\n", strings.Join(outputs, ", "))
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
