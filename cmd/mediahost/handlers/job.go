package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pixelbay/mediahost/cmd/mediahost/middleware"
	"github.com/pixelbay/mediahost/common/jobs"
	"github.com/pixelbay/mediahost/common/logger"
)

// JobHandler exposes processing job status
type JobHandler struct {
	pool *jobs.Pool
	log  *logger.Logger
}

// NewJobHandler creates a job handler
func NewJobHandler(pool *jobs.Pool, log *logger.Logger) *JobHandler {
	return &JobHandler{pool: pool, log: log}
}

// Get returns one job's status
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c echo.Context) error {
	sub, ok := middleware.GetSubject(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid job id"))
	}

	job, err := h.pool.Job(id)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return c.JSON(http.StatusNotFound, errorBody("job not found"))
		}
		h.log.Error("job lookup failed", "job_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("job lookup failed"))
	}
	if job.SubjectID != sub.ID {
		return c.JSON(http.StatusNotFound, errorBody("job not found"))
	}

	return c.JSON(http.StatusOK, job)
}

// Queue reports the current processing backlog
// GET /api/v1/jobs/queue
func (h *JobHandler) Queue(c echo.Context) error {
	if _, ok := middleware.GetSubject(c); !ok {
		return c.JSON(http.StatusUnauthorized, errorBody("authentication required"))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"depth": h.pool.QueueDepth(),
	})
}
