// Package pipeline validates scraped books and streams them to the
// configured output writers in batches.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/books-catalog/models"
	"github.com/aluiziolira/books-catalog/parser"
)

// DefaultBatchSize is the number of records buffered before a write.
const DefaultBatchSize = 64

var (
	// ErrPipelineClosed is returned when Process is called after Close.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(books []models.Book) error
	Close() error
	Validate() error
}

// Pipeline coordinates validation, de-duplication, and output writing.
// Records reach the writer in the order they were processed.
type Pipeline struct {
	writer    OutputWriter
	batchSize int
	logger    *slog.Logger

	mu      sync.Mutex
	batch   []models.Book
	seen    map[string]struct{}
	metrics counters
	closed  bool
	err     error
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithLogger sets the logger receiving flush events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline builds a pipeline writing to writer.
func NewPipeline(writer OutputWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		writer:    writer,
		batchSize: DefaultBatchSize,
		logger:    slog.Default(),
		seen:      make(map[string]struct{}),
		metrics:   newCounters(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.batch = make([]models.Book, 0, p.batchSize)
	return p
}

// Process validates books and writes every full batch.
func (p *Pipeline) Process(books ...models.Book) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	for _, book := range books {
		if !p.accept(book) {
			continue
		}
		p.batch = append(p.batch, book)
		if len(p.batch) >= p.batchSize {
			if err := p.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close writes the pending batch and prevents more submissions. The
// writer itself is left open for the caller to close.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.err
	}
	p.closed = true
	if p.err != nil {
		return p.err
	}
	return p.flush()
}

// Err returns the first write error.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.snapshot()
}

// Processed returns the number of records accepted so far.
func (p *Pipeline) Processed() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.processed
}

func (p *Pipeline) accept(book models.Book) bool {
	if err := parser.ValidateBook(book); err != nil {
		p.metrics.addValidation("invalid_record")
		p.logger.Debug("record rejected", slog.String("url", book.URL), slog.Any("error", err))
		return false
	}
	if _, ok := p.seen[book.URL]; ok {
		p.metrics.addValidation("duplicate_url")
		return false
	}
	p.seen[book.URL] = struct{}{}
	p.metrics.processed++
	return true
}

func (p *Pipeline) flush() error {
	if len(p.batch) == 0 {
		return nil
	}
	if err := p.writer.Write(p.batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	p.logger.Debug("batch written", slog.Int("records", len(p.batch)), slog.Int64("processed", p.metrics.processed))
	p.batch = p.batch[:0]
	return nil
}

// counters is guarded by Pipeline.mu.
type counters struct {
	processed  int64
	validation map[string]int
}

func newCounters() counters {
	return counters{
		validation: make(map[string]int),
	}
}

func (c *counters) addValidation(kind string) {
	c.validation[kind]++
}

func (c *counters) snapshot() map[string]interface{} {
	copyValidation := make(map[string]int, len(c.validation))
	for k, v := range c.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_books":   c.processed,
		"validation_errors": copyValidation,
	}
}
