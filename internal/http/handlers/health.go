package handlers

import (
	"context"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/voxsub/voxsub/internal/models"
	"github.com/voxsub/voxsub/internal/repository"
	"gorm.io/gorm"
)

// HealthHandler handles the liveness and readiness endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	queue     repository.QueueRepository
	tasks     repository.TaskRepository
	// tools maps an external binary name to its resolved path, empty when
	// the binary was not found at startup.
	tools map[string]string
	// storageDirs maps a label to the directory whose filesystem backs it.
	storageDirs map[string]string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for readiness checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithRepositories sets the repositories used for queue depth and active
// task counts.
func (h *HealthHandler) WithRepositories(queue repository.QueueRepository, tasks repository.TaskRepository) *HealthHandler {
	h.queue = queue
	h.tasks = tasks
	return h
}

// WithTools sets the resolved external binary paths.
func (h *HealthHandler) WithTools(tools map[string]string) *HealthHandler {
	h.tools = tools
	return h
}

// WithStorageDirs sets the storage directories to report disk usage for.
func (h *HealthHandler) WithStorageDirs(dirs map[string]string) *HealthHandler {
	h.storageDirs = dirs
	return h
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the liveness status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getHealthDeps",
		Method:      "GET",
		Path:        "/health/deps",
		Summary:     "Dependency health check",
		Description: "Returns the status of the database, queues, external tools and storage",
		Tags:        []string{"System"},
	}, h.GetHealthDeps)
}

// SystemInfo carries host load and memory figures.
type SystemInfo struct {
	Cores             int     `json:"cores"`
	Load1Min          float64 `json:"load_1min"`
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
}

// HealthResponse is the liveness envelope.
type HealthResponse struct {
	Status        string     `json:"status"`
	Timestamp     string     `json:"timestamp"`
	Version       string     `json:"version"`
	Uptime        string     `json:"uptime"`
	UptimeSeconds float64    `json:"uptime_seconds"`
	System        SystemInfo `json:"system"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth handles GET /health.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	return &HealthOutput{
		Body: HealthResponse{
			Status:        "healthy",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			System:        h.systemInfo(),
		},
	}, nil
}

func (h *HealthHandler) systemInfo() SystemInfo {
	info := SystemInfo{Cores: runtime.NumCPU()}

	if loadAvg, err := load.Avg(); err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
	}
	if vmStat, err := mem.VirtualMemory(); err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}
	return info
}

// DatabaseHealth reports the database readiness.
type DatabaseHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// QueueHealth reports the durable queue depths and active task count.
type QueueHealth struct {
	Status      string `json:"status"`
	Processing  int64  `json:"processing_depth"`
	Cleanup     int64  `json:"cleanup_depth"`
	ActiveTasks int64  `json:"active_tasks"`
	Error       string `json:"error,omitempty"`
}

// ToolHealth reports whether an external binary was found.
type ToolHealth struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// StorageHealth reports disk usage of one storage directory.
type StorageHealth struct {
	Status      string  `json:"status"`
	Path        string  `json:"path"`
	FreeBytes   uint64  `json:"free_bytes,omitempty"`
	UsedPercent float64 `json:"used_percent,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// HealthDepsResponse is the readiness envelope.
type HealthDepsResponse struct {
	Status   string                   `json:"status"`
	Database DatabaseHealth           `json:"database"`
	Queue    QueueHealth              `json:"queue"`
	Tools    map[string]ToolHealth    `json:"tools"`
	Storage  map[string]StorageHealth `json:"storage"`
}

// HealthDepsOutput is the output for the dependency health endpoint.
type HealthDepsOutput struct {
	Body HealthDepsResponse
}

// GetHealthDeps handles GET /health/deps. Degraded dependencies are reported
// in the body; the endpoint itself still answers 200 so monitors can read
// what broke.
func (h *HealthHandler) GetHealthDeps(ctx context.Context, _ *struct{}) (*HealthDepsOutput, error) {
	resp := HealthDepsResponse{
		Status:   "ok",
		Database: h.databaseHealth(ctx),
		Queue:    h.queueHealth(ctx),
		Tools:    h.toolHealth(),
		Storage:  h.storageHealth(),
	}

	if resp.Database.Status != "ok" || resp.Queue.Status != "ok" {
		resp.Status = "degraded"
	}
	for _, tool := range resp.Tools {
		if tool.Status != "ok" {
			resp.Status = "degraded"
		}
	}
	for _, store := range resp.Storage {
		if store.Status != "ok" {
			resp.Status = "degraded"
		}
	}

	return &HealthDepsOutput{Body: resp}, nil
}

func (h *HealthHandler) databaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "unknown"}
	}
	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}
	return DatabaseHealth{Status: "ok"}
}

func (h *HealthHandler) queueHealth(ctx context.Context) QueueHealth {
	if h.queue == nil {
		return QueueHealth{Status: "unknown"}
	}

	health := QueueHealth{Status: "ok"}
	var err error
	if health.Processing, err = h.queue.Depth(ctx, models.QueueProcessing); err != nil {
		return QueueHealth{Status: "error", Error: err.Error()}
	}
	if health.Cleanup, err = h.queue.Depth(ctx, models.QueueCleanup); err != nil {
		return QueueHealth{Status: "error", Error: err.Error()}
	}
	if h.tasks != nil {
		if health.ActiveTasks, err = h.tasks.CountActive(ctx); err != nil {
			return QueueHealth{Status: "error", Error: err.Error()}
		}
	}
	return health
}

func (h *HealthHandler) toolHealth() map[string]ToolHealth {
	out := make(map[string]ToolHealth, len(h.tools))
	for name, path := range h.tools {
		if path == "" {
			out[name] = ToolHealth{Status: "missing"}
			continue
		}
		out[name] = ToolHealth{Status: "ok", Path: path}
	}
	return out
}

func (h *HealthHandler) storageHealth() map[string]StorageHealth {
	out := make(map[string]StorageHealth, len(h.storageDirs))
	for label, dir := range h.storageDirs {
		usage, err := disk.Usage(dir)
		if err != nil {
			out[label] = StorageHealth{Status: "error", Path: dir, Error: err.Error()}
			continue
		}
		out[label] = StorageHealth{
			Status:      "ok",
			Path:        dir,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}
	return out
}
