package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/pipeline/core"
	"github.com/voxsub/voxsub/internal/progress"
	"github.com/voxsub/voxsub/internal/storage"
)

type nullSink struct{}

func (nullSink) UpdateProgress(context.Context, models.ULID, models.TaskProgress) error {
	return nil
}

func TestProbe_MissingSource(t *testing.T) {
	task := &models.Task{BaseModel: models.BaseModel{ID: models.NewULID()}}
	manager, err := storage.NewWorkspaces("", 0, t.TempDir(), nil)
	require.NoError(t, err)
	ws, err := manager.Acquire(task.ID.String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Release() })

	reporter := progress.NewReporter(task.ID, nullSink{}, progress.DefaultSteps, nil)
	state := core.NewState(task, ws, reporter)

	_, err = New(nil, nil).Execute(context.Background(), state)
	assert.ErrorIs(t, err, core.ErrNoSource)
}
