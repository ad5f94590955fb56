// Package catalog drives pagination and category traversal over the
// catalog, turning fetched pages into an ordered collection of books.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/books-catalog/fetcher"
	"github.com/aluiziolira/books-catalog/metrics"
	"github.com/aluiziolira/books-catalog/models"
	"github.com/aluiziolira/books-catalog/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	firstCatalogPage   = "catalogue/page-1.html"
	defaultVisitedSize = 4096
)

// PageFetcher retrieves raw page content. *fetcher.Fetcher satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Result, error)
	RequestCount() int64
}

// NotFoundError is returned when a requested category does not exist.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("category %q not found (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// Orchestrator walks the catalog one page at a time.
type Orchestrator struct {
	fetcher     PageFetcher
	base        *url.URL
	logger      *slog.Logger
	metrics     *metrics.Metrics
	details     bool
	visitedSize int
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger receiving run events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collectors updated per parsed page.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithDetails re-fetches every listed book from its detail page.
func WithDetails(enabled bool) Option {
	return func(o *Orchestrator) {
		o.details = enabled
	}
}

// WithVisitedSize bounds the set of page URLs remembered for cycle detection.
func WithVisitedSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.visitedSize = n
		}
	}
}

// New builds an orchestrator rooted at baseURL.
func New(f PageFetcher, baseURL string, opts ...Option) (*Orchestrator, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	o := &Orchestrator{
		fetcher:     f,
		base:        base,
		logger:      slog.Default(),
		visitedSize: defaultVisitedSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Categories fetches the home page and returns the category index.
func (o *Orchestrator) Categories(ctx context.Context) ([]parser.Category, error) {
	home := o.base.String()
	res, err := o.fetcher.Fetch(ctx, home)
	if err != nil {
		return nil, err
	}
	categories, err := parser.ParseCategories(res.Body, home)
	if err != nil {
		return nil, err
	}
	o.logger.Info("categories parsed", slog.Int("count", len(categories)))
	return categories, nil
}

// Run traverses the catalog according to mode. On failure the returned
// result still holds the books accumulated before the error.
func (o *Orchestrator) Run(ctx context.Context, mode models.Mode) (*models.RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if mode == nil {
		return nil, fmt.Errorf("mode is required")
	}

	startCount := o.fetcher.RequestCount()
	result := &models.RunResult{StartTime: time.Now()}
	finish := func(err error) (*models.RunResult, error) {
		result.EndTime = time.Now()
		result.FetchCount = o.fetcher.RequestCount() - startCount
		if err != nil {
			result.StopReason = string(stopFailed)
			o.logger.Error("run failed",
				slog.String("mode", mode.String()),
				slog.Int("books", len(result.Books)),
				slog.Int("pages", len(result.Pages)),
				slog.Any("error", err),
			)
			return result, err
		}
		o.logger.Info("run complete",
			slog.String("mode", mode.String()),
			slog.Int("books", len(result.Books)),
			slog.Int("pages", len(result.Pages)),
			slog.Int64("fetches", result.FetchCount),
			slog.String("stop", result.StopReason),
			slog.Duration("elapsed", result.Elapsed()),
		)
		return result, nil
	}

	state, err := o.start(ctx, mode)
	if err != nil {
		return finish(err)
	}

	visited, err := lru.New[string, struct{}](o.visitedSize)
	if err != nil {
		return finish(fmt.Errorf("visited cache: %w", err))
	}

	for state.stop == stopContinue {
		visited.Add(state.nextURL, struct{}{})
		state.pageIndex++

		page, stat, err := o.fetchPage(ctx, state)
		if err != nil {
			return finish(err)
		}

		books := page.Books
		if o.details {
			books, err = o.enrich(ctx, books)
			if err != nil {
				return finish(err)
			}
		}

		state.books = append(state.books, books...)
		result.Books = state.books
		stat.Books = len(books)
		result.Pages = append(result.Pages, stat)
		o.metrics.IncPage(len(books))

		state.advance(page.Info)
		if state.stop == stopContinue && visited.Contains(state.nextURL) {
			return finish(&parser.ParseError{
				URL:    stat.URL,
				Field:  "pagination",
				Reason: fmt.Sprintf("next link %s was already visited", state.nextURL),
			})
		}
	}

	result.Books = state.books
	result.StopReason = string(state.stop)
	return finish(nil)
}

// start resolves the first page of the traversal.
func (o *Orchestrator) start(ctx context.Context, mode models.Mode) (*crawlState, error) {
	switch m := mode.(type) {
	case models.Pages:
		return newCrawlState(o.resolve(firstCatalogPage), m.N, ""), nil
	case models.All:
		return newCrawlState(o.resolve(firstCatalogPage), 0, ""), nil
	case models.Category:
		categories, err := o.Categories(ctx)
		if err != nil {
			return nil, err
		}
		match, err := MatchCategory(categories, m.Name)
		if err != nil {
			return nil, err
		}
		o.logger.Info("category resolved", slog.String("category", match.Name), slog.String("url", match.URL))
		return newCrawlState(match.URL, 0, match.Name), nil
	default:
		return nil, fmt.Errorf("unsupported mode %T", mode)
	}
}

func (o *Orchestrator) fetchPage(ctx context.Context, state *crawlState) (*parser.Page, models.PageStat, error) {
	pageURL := state.nextURL
	stat := models.PageStat{Index: state.pageIndex, URL: pageURL}

	res, err := o.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, stat, err
	}
	stat.Attempts = res.Attempts
	stat.Latency = res.Elapsed
	o.logger.Info("page fetched",
		slog.Int("page", state.pageIndex),
		slog.String("url", pageURL),
		slog.Duration("latency", res.Elapsed),
		slog.Int("attempts", res.Attempts),
	)

	page, err := parser.ParseCatalogPage(res.Body, pageURL, state.category)
	if err != nil {
		return nil, stat, err
	}
	o.logger.Info("page parsed",
		slog.Int("page", state.pageIndex),
		slog.Int("books", len(page.Books)),
		slog.Int("total", len(state.books)+len(page.Books)),
		slog.Bool("has_next", page.Info.HasNext()),
	)
	return page, stat, nil
}

// enrich replaces every listing record by its detail-page record.
func (o *Orchestrator) enrich(ctx context.Context, books []models.Book) ([]models.Book, error) {
	out := make([]models.Book, 0, len(books))
	for _, listed := range books {
		res, err := o.fetcher.Fetch(ctx, listed.URL)
		if err != nil {
			return out, err
		}
		detail, err := parser.ParseBookDetail(res.Body, listed.URL)
		if err != nil {
			return out, err
		}
		out = append(out, detail)
	}
	return out, nil
}

func (o *Orchestrator) resolve(ref string) string {
	return o.base.ResolveReference(&url.URL{Path: ref}).String()
}

// MatchCategory finds name among categories, ignoring case and
// surrounding whitespace. Partial matches are not accepted.
func MatchCategory(categories []parser.Category, name string) (parser.Category, error) {
	wanted := normalizeLabel(name)
	for _, category := range categories {
		if normalizeLabel(category.Name) == wanted {
			return category, nil
		}
	}

	available := make([]string, 0, len(categories))
	for _, category := range categories {
		available = append(available, category.Name)
	}
	sort.Strings(available)
	return parser.Category{}, &NotFoundError{Name: name, Available: available}
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
