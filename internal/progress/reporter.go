// Package progress implements the weighted step model clients poll.
//
// Each pipeline run declares its steps up front with fixed weights. When a
// step is skipped (transcription-only runs have no translation, no burn-in),
// the remaining weights are renormalized proportionally so the total still
// reaches 100. Overall percent is monotonic: a late or duplicate report can
// never move it backwards, and indeterminate steps contribute zero until
// they complete.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
)

// Step identifiers in pipeline order.
const (
	StepAcquire    = "acquire"
	StepProbe      = "probe"
	StepExtract    = "extract_audio"
	StepTranscribe = "transcribe"
	StepTranslate  = "translate"
	StepEmit       = "emit_subtitles"
	StepBurnIn     = "burn_in"
	StepVerify     = "verify"
	StepPublish    = "publish"
)

// StepDef declares one weighted step.
type StepDef struct {
	Name   string
	Weight float64
}

// DefaultSteps is the full pipeline in order.
var DefaultSteps = []StepDef{
	{StepAcquire, 0.20},
	{StepProbe, 0.02},
	{StepExtract, 0.10},
	{StepTranscribe, 0.35},
	{StepTranslate, 0.15},
	{StepEmit, 0.03},
	{StepBurnIn, 0.10},
	{StepVerify, 0.03},
	{StepPublish, 0.02},
}

// Sink receives progress snapshots. The task repository is the production
// sink; tests substitute their own.
type Sink interface {
	UpdateProgress(ctx context.Context, id models.ULID, progress models.TaskProgress) error
}

var _ Sink = (repository.TaskRepository)(nil)

// Reporter tracks one task's progress and publishes snapshots to the sink.
// Safe for concurrent step updates.
type Reporter struct {
	taskID models.ULID
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	steps   []models.Step
	index   map[string]int
	started map[string]time.Time
	timings map[string]float64
	overall float64
	logs    []string

	// publishEvery throttles sink writes; zero publishes every update.
	publishEvery time.Duration
	lastPublish  time.Time
}

// NewReporter creates a Reporter over the given steps. Skipped steps are
// declared by omitting them from defs; the remaining weights renormalize to
// sum to 1.
func NewReporter(taskID models.ULID, sink Sink, defs []StepDef, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}

	total := 0.0
	for _, d := range defs {
		total += d.Weight
	}

	steps := make([]models.Step, len(defs))
	index := make(map[string]int, len(defs))
	for i, d := range defs {
		weight := d.Weight
		if total > 0 {
			weight = d.Weight / total
		}
		steps[i] = models.Step{Name: d.Name, Weight: weight, Status: models.StepWaiting}
		index[d.Name] = i
	}

	return &Reporter{
		taskID:       taskID,
		sink:         sink,
		logger:       logger,
		steps:        steps,
		index:        index,
		started:      make(map[string]time.Time),
		timings:      make(map[string]float64),
		publishEvery: 500 * time.Millisecond,
	}
}

// StartStep marks a step in progress. Indeterminate steps show activity but
// contribute nothing to the overall percent until completed.
func (r *Reporter) StartStep(ctx context.Context, name string, indeterminate bool) {
	r.mu.Lock()
	i, ok := r.index[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.steps[i].Status = models.StepInProgress
	r.steps[i].Indeterminate = indeterminate
	r.started[name] = time.Now()
	r.mu.Unlock()
	r.publish(ctx, true)
}

// UpdateStep reports percent progress within a running step.
func (r *Reporter) UpdateStep(ctx context.Context, name string, percent float64) {
	r.mu.Lock()
	i, ok := r.index[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	if percent > 100 {
		percent = 100
	}
	// Per-step percent is monotonic too.
	if percent > r.steps[i].Percent {
		r.steps[i].Percent = percent
	}
	r.mu.Unlock()
	r.publish(ctx, false)
}

// CompleteStep marks a step done and records its duration.
func (r *Reporter) CompleteStep(ctx context.Context, name string) {
	r.mu.Lock()
	i, ok := r.index[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.steps[i].Status = models.StepCompleted
	r.steps[i].Percent = 100
	r.steps[i].Indeterminate = false
	if start, ok := r.started[name]; ok {
		r.timings[name] = time.Since(start).Seconds()
	}
	r.mu.Unlock()
	r.publish(ctx, true)
}

// FailStep marks the running step as errored with a message.
func (r *Reporter) FailStep(ctx context.Context, name, message string) {
	r.mu.Lock()
	if i, ok := r.index[name]; ok {
		r.steps[i].Status = models.StepError
		r.steps[i].Message = message
	}
	r.mu.Unlock()
	r.publish(ctx, true)
}

// Log appends a client-visible log line to the progress envelope.
func (r *Reporter) Log(ctx context.Context, line string) {
	r.mu.Lock()
	r.logs = append(r.logs, line)
	if len(r.logs) > 50 {
		r.logs = r.logs[len(r.logs)-50:]
	}
	r.mu.Unlock()
	r.publish(ctx, false)
}

// Timings returns seconds spent per completed step plus a total.
func (r *Reporter) Timings() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]float64, len(r.timings)+1)
	total := 0.0
	for k, v := range r.timings {
		out[k] = v
		total += v
	}
	out["total"] = total
	return out
}

// Snapshot returns the current progress envelope.
func (r *Reporter) Snapshot() models.TaskProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reporter) snapshotLocked() models.TaskProgress {
	overall := 0.0
	for _, s := range r.steps {
		switch s.Status {
		case models.StepCompleted:
			overall += s.Weight * 100
		case models.StepInProgress, models.StepError:
			if !s.Indeterminate {
				overall += s.Weight * s.Percent
			}
		}
	}
	if overall > r.overall {
		r.overall = overall
	}

	steps := make([]models.Step, len(r.steps))
	copy(steps, r.steps)
	logs := make([]string, len(r.logs))
	copy(logs, r.logs)

	return models.TaskProgress{
		OverallPercent: r.overall,
		Steps:          steps,
		Logs:           logs,
	}
}

// publish writes a snapshot to the sink, throttled unless forced.
func (r *Reporter) publish(ctx context.Context, force bool) {
	r.mu.Lock()
	if !force && r.publishEvery > 0 && time.Since(r.lastPublish) < r.publishEvery {
		r.mu.Unlock()
		return
	}
	r.lastPublish = time.Now()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.sink == nil {
		return
	}
	if err := r.sink.UpdateProgress(ctx, r.taskID, snap); err != nil {
		r.logger.Warn("progress publish failed",
			slog.String("task_id", r.taskID.String()),
			slog.String("error", err.Error()),
		)
	}
}
