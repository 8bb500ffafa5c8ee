// Package translate converts transcribed segments between languages. Two
// service variants exist (a free web endpoint and a paid API); the engine
// batches segments, runs batches in parallel and retries transient failures
// with exponential backoff.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/subtitle"
	"golang.org/x/sync/errgroup"
)

// Backend is one translation service variant.
type Backend interface {
	// TranslateBatch translates texts from src to tgt, preserving order
	// and count.
	TranslateBatch(ctx context.Context, texts []string, src, tgt string) ([]string, error)
	// Service identifies the variant for result reporting.
	Service() models.TranslationService
}

// StatusError marks an HTTP failure from a translation service. Quota and
// server errors are retryable.
type StatusError struct {
	Code int
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("translation service returned %d: %s", e.Code, e.Body)
}

// Retryable reports whether the failure may clear on retry.
func (e *StatusError) Retryable() bool {
	return e.Code == 429 || e.Code >= 500
}

// EngineOptions tunes batching and retry behavior.
type EngineOptions struct {
	BatchSize     int
	Parallelism   int
	RetryAttempts int
	RetryBase     time.Duration
	RetryCap      time.Duration
}

func (o *EngineOptions) setDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 2
	}
	if o.RetryAttempts < 0 {
		o.RetryAttempts = 2
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.RetryCap <= 0 {
		o.RetryCap = 10 * time.Second
	}
}

// Engine coordinates batched, parallel translation with service fallback.
type Engine struct {
	primary  Backend
	fallback Backend
	opts     EngineOptions
	logger   *slog.Logger
}

// NewEngine creates an Engine. fallback may be nil.
func NewEngine(primary, fallback Backend, opts EngineOptions, logger *slog.Logger) *Engine {
	opts.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{primary: primary, fallback: fallback, opts: opts, logger: logger}
}

// Result is the translation output.
type Result struct {
	Segments []subtitle.Cue
	// ServiceUsed is the variant that produced the output, which is the
	// fallback when the primary persistently failed.
	ServiceUsed models.TranslationService
}

// Translate translates all cue texts from src to tgt. Timing is preserved;
// only text changes. OnProgress receives percent of batches completed.
func (e *Engine) Translate(ctx context.Context, cues []subtitle.Cue, src, tgt string, onProgress func(percent float64)) (*Result, error) {
	if len(cues) == 0 {
		return &Result{Segments: nil, ServiceUsed: e.primary.Service()}, nil
	}

	texts := make([]string, len(cues))
	for i, c := range cues {
		texts[i] = c.Text
	}

	translated, err := e.translateAll(ctx, e.primary, texts, src, tgt, onProgress)
	used := e.primary.Service()
	if err != nil && e.fallback != nil && ctx.Err() == nil {
		e.logger.Warn("primary translation service failed, falling back",
			slog.String("primary", string(e.primary.Service())),
			slog.String("fallback", string(e.fallback.Service())),
			slog.String("error", err.Error()),
		)
		translated, err = e.translateAll(ctx, e.fallback, texts, src, tgt, onProgress)
		used = e.fallback.Service()
	}
	if err != nil {
		return nil, err
	}

	out := make([]subtitle.Cue, len(cues))
	copy(out, cues)
	for i := range out {
		out[i].Text = translated[i]
	}
	return &Result{Segments: out, ServiceUsed: used}, nil
}

// translateAll fans batches out across workers and merges results in order.
func (e *Engine) translateAll(ctx context.Context, backend Backend, texts []string, src, tgt string, onProgress func(percent float64)) ([]string, error) {
	batches := batchIndices(len(texts), e.opts.BatchSize)
	results := make([][]string, len(batches))
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Parallelism)

	progress := make(chan struct{}, len(batches))
	for bi, rng := range batches {
		g.Go(func() error {
			out, err := e.translateBatch(gctx, backend, texts[rng[0]:rng[1]], src, tgt)
			if err != nil {
				return err
			}
			results[bi] = out
			progress <- struct{}{}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	for {
		select {
		case <-progress:
			completed++
			if onProgress != nil {
				onProgress(float64(completed) / float64(len(batches)) * 100)
			}
		case err := <-done:
			if err != nil {
				return nil, err
			}
			merged := make([]string, 0, len(texts))
			for _, r := range results {
				merged = append(merged, r...)
			}
			return merged, nil
		}
	}
}

// translateBatch runs one batch with exponential backoff on retryable
// failures.
func (e *Engine) translateBatch(ctx context.Context, backend Backend, texts []string, src, tgt string) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, e.opts.RetryBase, e.opts.RetryCap)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		out, err := backend.TranslateBatch(ctx, texts, src, tgt)
		if err == nil {
			if len(out) != len(texts) {
				return nil, fmt.Errorf("translation count mismatch: sent %d, got %d", len(texts), len(out))
			}
			return out, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() {
			return nil, err
		}
	}
	return nil, fmt.Errorf("translation failed after %d attempts: %w", e.opts.RetryAttempts+1, lastErr)
}

// backoffDelay doubles the base per attempt up to the cap.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base << (attempt - 1)
	if delay > maxDelay || delay <= 0 {
		return maxDelay
	}
	return delay
}

// batchIndices splits n items into [start,end) ranges of at most size.
func batchIndices(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
