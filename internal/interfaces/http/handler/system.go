package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lendsaas/backend/internal/infrastructure/scheduler"
	"github.com/lendsaas/backend/internal/interfaces/http/dto"
)

// DatabasePinger checks database connectivity
type DatabasePinger interface {
	PingContext(ctx context.Context) error
}

// JobReporter exposes the last run of each background job
type JobReporter interface {
	IsRunning() bool
	LastRuns() map[string]scheduler.JobRun
}

// SystemHandler serves liveness and job status
type SystemHandler struct {
	BaseHandler
	db        DatabasePinger
	jobs      JobReporter
	version   string
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler. db and jobs may be nil.
func NewSystemHandler(version string, db DatabasePinger, jobs JobReporter) *SystemHandler {
	return &SystemHandler{
		db:        db,
		jobs:      jobs,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                      `json:"status"`
	Version   string                      `json:"version"`
	GoVersion string                      `json:"go_version"`
	Uptime    string                      `json:"uptime"`
	Database  string                      `json:"database,omitempty"`
	Scheduler string                      `json:"scheduler,omitempty"`
	Jobs      map[string]scheduler.JobRun `json:"jobs,omitempty"`
}

// Health reports liveness, database reachability and background jobs.
// An unreachable database answers 503.
//
//	GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	}

	if h.jobs != nil {
		resp.Scheduler = "stopped"
		if h.jobs.IsRunning() {
			resp.Scheduler = "running"
		}
		resp.Jobs = h.jobs.LastRuns()
	}

	c.JSON(status, dto.NewSuccessResponse(resp))
}
