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

	"github.com/aluiziolira/books-catalog/catalog"
	"github.com/aluiziolira/books-catalog/config"
	"github.com/aluiziolira/books-catalog/fetcher"
	"github.com/aluiziolira/books-catalog/metrics"
	"github.com/aluiziolira/books-catalog/models"
	"github.com/aluiziolira/books-catalog/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults, err := envDefaults(config.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		return 2
	}

	pages := flag.Int("pages", 0, "Scrape the first N catalogue pages")
	all := flag.Bool("all", false, "Scrape the whole catalogue")
	category := flag.String("category", "", "Scrape every page of one category (case-insensitive)")
	outputFormat := flag.String("format", defaults.OutputFormat, "Output format: csv, json, or dual")
	outputDir := flag.String("output-dir", defaults.OutputDir, "Directory receiving books_YYYY-MM-DD files")
	maxRetries := flag.Int("max-retries", defaults.MaxRetries, "Retries after the first attempt of each request")
	retryBackoff := flag.Duration("retry-backoff", defaults.RetryBackoff, "Initial retry backoff, doubled per retry")
	retryBackoffMax := flag.Duration("retry-backoff-max", defaults.RetryBackoffMax, "Cap on a single backoff (0 = uncapped)")
	delay := flag.Duration("delay", defaults.Delay, "Minimum gap between consecutive requests")
	timeout := flag.Duration("timeout", defaults.Timeout, "Per-attempt request timeout")
	baseURL := flag.String("base-url", defaults.BaseURL, "Catalog root URL")
	details := flag.Bool("details", defaults.FetchDetails, "Fetch each book's detail page")
	keepPartial := flag.Bool("keep-partial", defaults.KeepPartial, "Export records gathered before a failure")
	verbose := flag.Bool("v", defaults.Verbose, "Enable verbose logging")
	metricsAddr := flag.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	mode, err := config.ParseMode(*pages, *all, *category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n\n", err)
		flag.Usage()
		return 2
	}

	cfg := defaults
	cfg.Mode = mode
	cfg.BaseURL = *baseURL
	cfg.Delay = *delay
	cfg.Timeout = *timeout
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.FetchDetails = *details
	cfg.KeepPartial = *keepPartial
	cfg.OutputDir = *outputDir
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.Verbose = *verbose
	cfg.MetricsAddr = *metricsAddr
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr, m)
	defer shutdownMetricsServer(metricsServer)

	f, err := fetcher.New(cfg, fetcher.WithLogger(logger), fetcher.WithMetrics(m))
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		return 1
	}
	defer f.Close()

	orchestrator, err := catalog.New(f, cfg.BaseURL,
		catalog.WithLogger(logger),
		catalog.WithMetrics(m),
		catalog.WithDetails(cfg.FetchDetails),
	)
	if err != nil {
		slog.Error("initialising catalog", slog.Any("error", err))
		return 1
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.String("mode", cfg.Mode.String()),
		slog.Duration("delay", cfg.Delay),
		slog.Int("max_retries", cfg.MaxRetries),
	)

	result, runErr := orchestrator.Run(ctx, cfg.Mode)
	if runErr != nil {
		var notFound *catalog.NotFoundError
		if errors.As(runErr, &notFound) {
			fmt.Fprintf(os.Stderr, "unknown category %q; available: %s\n", notFound.Name, strings.Join(notFound.Available, ", "))
		}
		if !cfg.KeepPartial || result == nil || len(result.Books) == 0 {
			slog.Error("scraping failed", slog.Any("error", runErr))
			return 1
		}
		slog.Warn("scraping failed, exporting partial results",
			slog.Int("books", len(result.Books)),
			slog.Any("error", runErr),
		)
	}

	paths, processed, err := export(cfg, result.Books, logger)
	if err != nil {
		slog.Error("export failed", slog.Any("error", err))
		return 1
	}

	printSummary(result, processed, paths)
	if runErr != nil {
		return 1
	}
	return 0
}

// envDefaults applies SCRAPER_* overrides so they become flag defaults.
func envDefaults(cfg *config.Config) (*config.Config, error) {
	if value, ok := config.EnvString("SCRAPER_BASE_URL"); ok {
		cfg.BaseURL = value
	}
	if value, ok := config.EnvString("SCRAPER_FORMAT"); ok {
		cfg.OutputFormat = value
	}
	if value, ok := config.EnvString("SCRAPER_OUTPUT_DIR"); ok {
		cfg.OutputDir = value
	}
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	if value, ok := config.EnvString("SCRAPER_USER_AGENT"); ok {
		cfg.UserAgent = value
	}

	if value, ok, err := config.EnvInt("SCRAPER_MAX_RETRIES"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRetries = value
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"SCRAPER_DELAY", &cfg.Delay},
		{"SCRAPER_TIMEOUT", &cfg.Timeout},
		{"SCRAPER_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"SCRAPER_RETRY_BACKOFF_MAX", &cfg.RetryBackoffMax},
	}
	for _, d := range durations {
		value, ok, err := config.EnvDuration(d.key)
		if err != nil {
			return nil, err
		}
		if ok {
			*d.target = value
		}
	}

	flags := []struct {
		key    string
		target *bool
	}{
		{"SCRAPER_DETAILS", &cfg.FetchDetails},
		{"SCRAPER_KEEP_PARTIAL", &cfg.KeepPartial},
		{"SCRAPER_VERBOSE", &cfg.Verbose},
	}
	for _, b := range flags {
		value, ok, err := config.EnvBool(b.key)
		if err != nil {
			return nil, err
		}
		if ok {
			*b.target = value
		}
	}
	return cfg, nil
}

func createWriter(cfg *config.Config, date time.Time) (pipeline.OutputWriter, []string, error) {
	csvPath := pipeline.BuildPath(cfg.OutputDir, "csv", date)
	jsonPath := pipeline.BuildPath(cfg.OutputDir, "json", date)
	switch cfg.OutputFormat {
	case "json":
		w, err := pipeline.NewJSONWriter(jsonPath)
		return w, []string{jsonPath}, err
	case "csv":
		w, err := pipeline.NewCSVWriter(csvPath)
		return w, []string{csvPath}, err
	case "dual":
		w, err := pipeline.NewDualWriter(csvPath, jsonPath)
		return w, []string{csvPath, jsonPath}, err
	default:
		return nil, nil, fmt.Errorf("unsupported format: %s", cfg.OutputFormat)
	}
}

func export(cfg *config.Config, books []models.Book, logger *slog.Logger) ([]string, int64, error) {
	writer, paths, err := createWriter(cfg, time.Now())
	if err != nil {
		return nil, 0, fmt.Errorf("create writer: %w", err)
	}

	p := pipeline.NewPipeline(writer, pipeline.WithLogger(logger))
	processErr := p.Process(books...)
	if processErr == nil {
		processErr = p.Close()
	}
	if err := writer.Close(); err != nil && processErr == nil {
		processErr = fmt.Errorf("close writer: %w", err)
	}
	if processErr != nil {
		return paths, p.Processed(), processErr
	}
	if err := writer.Validate(); err != nil {
		return paths, p.Processed(), fmt.Errorf("output validation: %w", err)
	}

	validation, _ := p.GetMetrics()["validation_errors"].(map[string]int)
	if len(validation) > 0 {
		logger.Warn("records skipped during export", slog.Any("validation_errors", validation))
	}
	return paths, p.Processed(), nil
}

func startMetricsServer(addr string, m *metrics.Metrics) *http.Server {
	if addr == "" {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func shutdownMetricsServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("metrics server shutdown failed", slog.Any("error", err))
	}
}

func printSummary(result *models.RunResult, exported int64, paths []string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")

	fmt.Printf("  Total books:   %d\n", len(result.Books))
	fmt.Printf("  Exported:      %d\n", exported)
	fmt.Printf("  Avg price:     £%.2f\n", averagePrice(result.Books))
	fmt.Println("  Ratings:")
	dist := ratingDistribution(result.Books)
	for stars := 5; stars >= 1; stars-- {
		fmt.Printf("    %s%s %d\n", strings.Repeat("★", stars), strings.Repeat("☆", 5-stars), dist[stars])
	}
	fmt.Printf("  Pages:         %d\n", len(result.Pages))
	fmt.Printf("  Fetches:       %d\n", result.FetchCount)
	if result.StopReason != "" {
		fmt.Printf("  Stopped:       %s\n", result.StopReason)
	}
	fmt.Printf("  Elapsed:       %v\n", result.Elapsed().Round(time.Millisecond))
	for _, path := range paths {
		fmt.Printf("  Output file:   %s\n", path)
	}
	fmt.Println(separator)
}

func averagePrice(books []models.Book) float64 {
	if len(books) == 0 {
		return 0
	}
	var total float64
	for _, book := range books {
		total += book.Price
	}
	return total / float64(len(books))
}

func ratingDistribution(books []models.Book) [6]int {
	var dist [6]int
	for _, book := range books {
		if book.Rating >= 1 && book.Rating <= 5 {
			dist[book.Rating]++
		}
	}
	return dist
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
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
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
