package handlers

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/voxsub/voxsub/internal/config"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"github.com/voxsub/voxsub/internal/service"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// handlerFixture wires the service layer over an in-memory database. Stores
// and probers are nil; tests stay on the code paths that do not touch them.
type handlerFixture struct {
	db     *gorm.DB
	cfg    *config.Config
	repo   repository.TaskRepository
	queue  repository.QueueRepository
	tasks  *service.TaskService
	tokens *service.TokenService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Task{}, &models.QueueJob{}, &models.LogoAsset{}, &models.TokenRedemption{},
	))

	cfg := &config.Config{}
	cfg.Server.EnableRemoteDownload = true
	cfg.Server.QueueDepthLimit = 10
	cfg.Transcribe.DefaultModel = "base"

	repo := repository.NewTaskRepository(db, 0, 0)
	queue := repository.NewQueueRepository(db)
	tasks := service.NewTaskService(
		cfg, repo, queue, repository.NewAssetRepository(db),
		nil, nil, nil, nil, nil,
	)
	tokens, err := service.NewTokenService("", 15*time.Minute, repository.NewTokenRepository(db), nil)
	require.NoError(t, err)

	return &handlerFixture{
		db:     db,
		cfg:    cfg,
		repo:   repo,
		queue:  queue,
		tasks:  tasks,
		tokens: tokens,
	}
}
