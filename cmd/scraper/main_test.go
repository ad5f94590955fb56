package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/books-catalog/config"
	"github.com/aluiziolira/books-catalog/models"
)

func TestEnvDefaults(t *testing.T) {
	t.Setenv("SCRAPER_DELAY", "250ms")
	t.Setenv("SCRAPER_MAX_RETRIES", "5")
	t.Setenv("SCRAPER_FORMAT", "dual")
	t.Setenv("SCRAPER_KEEP_PARTIAL", "true")

	cfg, err := envDefaults(config.DefaultConfig())
	if err != nil {
		t.Fatalf("envDefaults: %v", err)
	}
	if cfg.Delay != 250*time.Millisecond || cfg.MaxRetries != 5 || cfg.OutputFormat != "dual" || !cfg.KeepPartial {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("SCRAPER_TIMEOUT", "soon")
	if _, err := envDefaults(config.DefaultConfig()); err == nil {
		t.Fatalf("expected error for malformed SCRAPER_TIMEOUT")
	}
}

func TestSummaryHelpers(t *testing.T) {
	books := []models.Book{{Price: 10, Rating: 5}, {Price: 20, Rating: 5}, {Price: 30, Rating: 1}}
	if got := averagePrice(books); got != 20 {
		t.Fatalf("averagePrice = %v, want 20", got)
	}
	if got := averagePrice(nil); got != 0 {
		t.Fatalf("averagePrice(nil) = %v, want 0", got)
	}
	dist := ratingDistribution(books)
	if dist[5] != 2 || dist[1] != 1 || dist[3] != 0 {
		t.Fatalf("distribution = %v", dist)
	}
}

func TestExportDual(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.OutputFormat = "dual"
	books := []models.Book{
		{Title: "Sharp Objects", Price: 47.82, Rating: 4, Availability: true, Category: "Mystery", URL: "http://example.test/b/1"},
		{Title: "", Price: 1, Rating: 1, Availability: true, Category: "Mystery", URL: "http://example.test/b/2"},
	}

	paths, processed, err := export(cfg, books, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want csv and json", paths)
	}
	for _, path := range paths {
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("%s missing or empty", path)
		}
	}
}
