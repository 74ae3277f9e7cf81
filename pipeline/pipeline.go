package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []models.BookRecord) error
	Close() error
	Validate() error
}

// Pipeline validates records and hands them to the writer in arrival order.
// Process writes before returning, so nothing is buffered across calls.
type Pipeline struct {
	writer OutputWriter

	metrics metrics

	mu     sync.Mutex // guards closed/err and serialises writes
	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline that writes through writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Process validates and writes records and reports how many were written.
// Records failing validation are counted and dropped; a write failure closes
// the pipeline.
func (p *Pipeline) Process(records ...models.BookRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return 0, p.err
	}
	if p.closed {
		return 0, ErrPipelineClosed
	}

	batch := make([]models.BookRecord, 0, len(records))
	for _, record := range records {
		if err := parser.ValidateRecord(record); err != nil {
			p.metrics.addValidation("invalid_record")
			slog.Warn("dropping invalid record", slog.Any("error", err))
			continue
		}
		batch = append(batch, record)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	if err := p.writer.Write(batch); err != nil {
		p.err = fmt.Errorf("write records: %w", err)
		p.closed = true
		p.signalShutdown()
		return 0, p.err
	}
	for _, record := range batch {
		p.metrics.recordWritten(record)
	}
	return len(batch), nil
}

// Close prevents more submissions and returns the first write error.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	err := p.err
	p.mu.Unlock()

	p.signalShutdown()
	return err
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("processed", metrics["processed_books"].(int64)),
					slog.Int("validation_errors", len(metrics["validation_errors"].(map[string]int))),
					slog.Any("missing_fields", metrics["missing_fields"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
	missing    map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
		missing:    make(map[string]int),
	}
}

func (m *metrics) recordWritten(r models.BookRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed++
	for _, name := range models.DetailFields {
		if !r.Get(name).Present {
			m.missing[string(name)]++
		}
	}
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}
	copyMissing := make(map[string]int, len(m.missing))
	for k, v := range m.missing {
		copyMissing[k] = v
	}

	return map[string]interface{}{
		"processed_books":   m.processed,
		"validation_errors": copyValidation,
		"missing_fields":    copyMissing,
	}
}
