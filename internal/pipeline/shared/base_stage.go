// Package shared holds utilities common to all pipeline stages.
package shared

import (
	"context"

	"github.com/voxsub/voxsub/internal/pipeline/core"
)

// BaseStage supplies the identity methods and a no-op Cleanup so stages only
// implement Execute.
type BaseStage struct {
	id   string
	name string
}

// NewBaseStage creates a BaseStage with the given identifiers.
func NewBaseStage(id, name string) BaseStage {
	return BaseStage{id: id, name: name}
}

// ID returns the stage identifier.
func (b *BaseStage) ID() string { return b.id }

// Name returns the human-readable stage name.
func (b *BaseStage) Name() string { return b.name }

// Cleanup is a no-op; stages that hold resources override it.
func (b *BaseStage) Cleanup(ctx context.Context) error { return nil }

// NewResult creates an empty StageResult.
func NewResult() *core.StageResult {
	return &core.StageResult{Artifacts: make([]core.Artifact, 0)}
}
