package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/subtitle"
	"golang.org/x/sync/errgroup"
)

// StreamSink receives translated cues in order while later batches are still
// in flight. Reset discards any partial output before a fallback retry.
type StreamSink interface {
	Reset() error
	Emit(batch []subtitle.Cue) error
}

// TranslateStream translates cues batch by batch and hands each batch to the
// sink as soon as it and all of its predecessors are done. Batches run with
// bounded parallelism; delivery is strictly in cue order. When the primary
// service fails mid-stream and a fallback is configured, the sink is reset
// and the whole stream is replayed against the fallback.
func (e *Engine) TranslateStream(ctx context.Context, cues []subtitle.Cue, src, tgt string, sink StreamSink, onProgress func(percent float64)) (models.TranslationService, error) {
	if len(cues) == 0 {
		return e.primary.Service(), nil
	}

	err := e.streamAll(ctx, e.primary, cues, src, tgt, sink, onProgress)
	used := e.primary.Service()
	if err != nil && e.fallback != nil && ctx.Err() == nil {
		e.logger.Warn("primary translation service failed mid-stream, falling back",
			slog.String("primary", string(e.primary.Service())),
			slog.String("fallback", string(e.fallback.Service())),
			slog.String("error", err.Error()),
		)
		if resetErr := sink.Reset(); resetErr != nil {
			return used, fmt.Errorf("resetting sink for fallback: %w", resetErr)
		}
		err = e.streamAll(ctx, e.fallback, cues, src, tgt, sink, onProgress)
		used = e.fallback.Service()
	}
	return used, err
}

// streamAll dispatches batches against one backend and merges them in order.
// A window of slot tokens bounds how far translation may run ahead of the
// sink, giving the producer/consumer overlap backpressure.
func (e *Engine) streamAll(ctx context.Context, backend Backend, cues []subtitle.Cue, src, tgt string, sink StreamSink, onProgress func(percent float64)) error {
	texts := make([]string, len(cues))
	for i, c := range cues {
		texts[i] = c.Text
	}

	batches := batchIndices(len(texts), e.opts.BatchSize)
	ready := make([]chan []string, len(batches))
	for i := range ready {
		ready[i] = make(chan []string, 1)
	}

	window := make(chan struct{}, e.opts.Parallelism+2)

	g, gctx := errgroup.WithContext(ctx)

	// Consumer: waits for each batch in index order and appends it.
	g.Go(func() error {
		for bi, rng := range batches {
			var out []string
			select {
			case <-gctx.Done():
				return gctx.Err()
			case out = <-ready[bi]:
			}

			batch := make([]subtitle.Cue, rng[1]-rng[0])
			copy(batch, cues[rng[0]:rng[1]])
			for i := range batch {
				batch[i].Text = out[i]
			}
			if err := sink.Emit(batch); err != nil {
				return fmt.Errorf("emitting translated batch: %w", err)
			}
			<-window

			if onProgress != nil {
				onProgress(float64(bi+1) / float64(len(batches)) * 100)
			}
		}
		return nil
	})

	// Producers: one goroutine per batch, gated by the window.
	g.Go(func() error {
		inner, ictx := errgroup.WithContext(gctx)
		inner.SetLimit(e.opts.Parallelism)
		for bi, rng := range batches {
			select {
			case <-ictx.Done():
				return inner.Wait()
			case window <- struct{}{}:
			}
			inner.Go(func() error {
				out, err := e.translateBatch(ictx, backend, texts[rng[0]:rng[1]], src, tgt)
				if err != nil {
					return err
				}
				ready[bi] <- out
				return nil
			})
		}
		return inner.Wait()
	})

	return g.Wait()
}
