package scheduler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for task operations.
type Handlers struct {
	scheduler *Scheduler
}

// NewHandlers creates new task handlers.
func NewHandlers(scheduler *Scheduler) *Handlers {
	return &Handlers{scheduler: scheduler}
}

// RegisterRoutes registers the task routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:type", h.Get)
	g.POST("/:type/run", h.RunNow)
	g.PATCH("/:type", h.Update)
}

// List returns all registered tasks.
// GET /api/v1/tasks
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, h.scheduler.Tasks())
}

// Get returns a single task.
// GET /api/v1/tasks/:type
func (h *Handlers) Get(c echo.Context) error {
	taskType, err := ParseTaskType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	info, err := h.scheduler.Task(taskType)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}

// RunNow manually triggers a task. Returns 202 whether the task started or
// was skipped because it is already running.
// POST /api/v1/tasks/:type/run
func (h *Handlers) RunNow(c echo.Context) error {
	taskType, err := ParseTaskType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.scheduler.RunNow(taskType); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusAccepted)
}

// updateTaskInput is the body for PATCH /tasks/:type.
type updateTaskInput struct {
	Enabled         *bool `json:"enabled,omitempty"`
	IntervalMinutes *int  `json:"intervalMinutes,omitempty"`
}

// Update changes a task's enabled flag and/or interval.
// PATCH /api/v1/tasks/:type
func (h *Handlers) Update(c echo.Context) error {
	taskType, err := ParseTaskType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var input updateTaskInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()

	if input.IntervalMinutes != nil {
		interval := time.Duration(*input.IntervalMinutes) * time.Minute
		if err := h.scheduler.SetInterval(ctx, taskType, interval); err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	if input.Enabled != nil {
		if *input.Enabled {
			err = h.scheduler.Enable(ctx, taskType)
		} else {
			err = h.scheduler.Disable(ctx, taskType)
		}
		if err != nil {
			if errors.Is(err, ErrTaskNotFound) {
				return echo.NewHTTPError(http.StatusNotFound, err.Error())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}

	info, err := h.scheduler.Task(taskType)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, info)
}
