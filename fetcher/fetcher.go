// Package fetcher issues paced, retrying HTTP GETs against the catalog host.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/books-catalog/config"
	"github.com/aluiziolira/books-catalog/metrics"
	"github.com/gocolly/colly/v2"
)

const (
	responseKey = "response"

	// DefaultMaxBodySize is the largest body read per response; longer
	// bodies are cut at this size.
	DefaultMaxBodySize = 10 << 20
)

// Result is the successful outcome of one Fetch call.
type Result struct {
	URL        string
	StatusCode int
	Body       []byte
	Elapsed    time.Duration
	Attempts   int
}

// Fetcher wraps a synchronous colly collector with pacing and retry.
// It is not safe for concurrent use; one run owns one Fetcher.
type Fetcher struct {
	collector *colly.Collector
	transport http.RoundTripper
	policy    RetryPolicy
	delay     time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	maxBodySize  int
	requestCount int64
	lastDone     time.Time
	closed       bool
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the HTTP transport used by the collector.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		f.transport = rt
	}
}

// WithLogger sets the logger receiving fetch events.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collectors updated per attempt.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithRetryPolicy overrides the policy derived from the config.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// New builds a fetcher configured from cfg.
func New(cfg *config.Config, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if cfg.Delay < 0 {
		return nil, fmt.Errorf("delay cannot be negative")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}
	if cfg.RetryBackoff < 0 || cfg.RetryBackoffMax < 0 {
		return nil, fmt.Errorf("retry backoff cannot be negative")
	}

	f := &Fetcher{
		policy:      NewRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff, cfg.RetryBackoffMax),
		delay:       cfg.Delay,
		logger:      slog.Default(),
		maxBodySize: DefaultMaxBodySize,
		now:         time.Now,
		sleep:       sleepContext,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.maxBodySize
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(f.transport)

	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})
	f.collector = collector

	f.logger.Info("fetcher initialised",
		slog.Int("max_retries", f.policy.MaxRetries),
		slog.Duration("backoff", f.policy.BaseBackoff),
		slog.Duration("delay", f.delay),
		slog.Duration("timeout", cfg.Timeout),
	)
	return f, nil
}

// RequestCount is the number of HTTP attempts made so far, retries included.
func (f *Fetcher) RequestCount() int64 {
	return f.requestCount
}

// Policy returns the retry policy in effect.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// Fetch retrieves rawURL, pacing against the previous call and retrying
// transient failures. Any failure is returned as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if f.closed {
		return nil, &FetchError{URL: rawURL, Err: ErrClosed}
	}
	if err := validateURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	start := f.now()
	if err := f.waitForPacing(ctx); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	var (
		lastErr    error
		lastStatus int
		attempts   int
	)
	for attempt := 1; attempt <= f.policy.Attempts(); attempt++ {
		if attempt > 1 {
			backoff := f.policy.Backoff(attempt - 1)
			f.logger.Warn("fetch retry",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", f.policy.Attempts()),
				slog.Duration("backoff", backoff),
				slog.String("cause", errorTypeLabel(lastErr)),
			)
			f.metrics.IncRetries()
			if err := f.sleep(ctx, backoff); err != nil {
				return nil, &FetchError{URL: rawURL, StatusCode: lastStatus, Attempts: attempts, Err: err}
			}
		}

		attempts = attempt
		status, body, latency, err := f.attempt(rawURL)
		classified := classifyError(err, status)
		if classified == nil {
			f.metrics.IncRequest("ok")
			f.logger.Info("fetch ok",
				slog.String("url", rawURL),
				slog.Int("status", status),
				slog.Int("attempt", attempt),
				slog.Duration("latency", latency),
			)
			return &Result{
				URL:        rawURL,
				StatusCode: status,
				Body:       body,
				Elapsed:    f.now().Sub(start),
				Attempts:   attempt,
			}, nil
		}

		lastErr = classified
		lastStatus = status
		label := errorTypeLabel(classified)
		f.metrics.IncError(label)

		if !f.policy.Retryable(status, err) {
			f.metrics.IncRequest("failed")
			break
		}
		f.metrics.IncRequest("retryable")
		f.logger.Warn("fetch attempt failed",
			slog.String("url", rawURL),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.String("category", label),
			slog.Any("error", classified),
		)
	}

	fetchErr := &FetchError{URL: rawURL, StatusCode: lastStatus, Attempts: attempts, Err: lastErr}
	f.logger.Error("fetch failed",
		slog.String("url", rawURL),
		slog.Int("attempts", attempts),
		slog.String("category", fetchErr.Kind()),
		slog.Any("error", lastErr),
	)
	return nil, fetchErr
}

// Close releases pooled connections. It is safe to call more than once.
func (f *Fetcher) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if closer, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
	f.logger.Info("fetcher closed", slog.Int64("requests", f.requestCount))
	return nil
}

// attempt performs exactly one GET through the collector.
func (f *Fetcher) attempt(rawURL string) (int, []byte, time.Duration, error) {
	f.requestCount++
	ctx := colly.NewContext()

	started := f.now()
	err := f.collector.Request(http.MethodGet, rawURL, nil, ctx, nil)
	latency := f.now().Sub(started)
	f.lastDone = f.now()
	f.metrics.ObserveDuration(latency)

	resp, _ := ctx.GetAny(responseKey).(*colly.Response)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return status, nil, latency, err
	}
	if resp == nil {
		return 0, nil, latency, errors.New("no response received")
	}
	return resp.StatusCode, resp.Body, latency, nil
}

// waitForPacing blocks until the configured delay has passed since the
// previous attempt completed.
func (f *Fetcher) waitForPacing(ctx context.Context) error {
	if f.delay <= 0 || f.lastDone.IsZero() {
		return nil
	}
	remaining := f.delay - f.now().Sub(f.lastDone)
	if remaining <= 0 {
		return nil
	}
	f.logger.Debug("rate limit: sleeping before next request", slog.Duration("wait", remaining))
	return f.sleep(ctx, remaining)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func validateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, rawURL)
	}
	return nil
}
