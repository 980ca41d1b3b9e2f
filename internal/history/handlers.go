package history

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/driftwood/driftwood/internal/scheduler"
)

// Handlers provides HTTP handlers for history operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new history handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers history routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.DELETE("", h.Clear)
}

// List returns paginated history entries, optionally filtered by event
// type, task type and a lower bound on the entry time.
// GET /api/v1/history?eventType=&taskType=&since=&page=&pageSize=
func (h *Handlers) List(c echo.Context) error {
	opts := ListOptions{
		EventType: c.QueryParam("eventType"),
		Page:      intParam(c, "page", 1),
		PageSize:  intParam(c, "pageSize", 50),
	}

	if tt := c.QueryParam("taskType"); tt != "" {
		parsed, err := scheduler.ParseTaskType(tt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Unknown task type: "+tt)
		}
		opts.TaskType = string(parsed)
	}

	if since := c.QueryParam("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		opts.Since = parsed
	}

	result, err := h.service.List(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list history")
	}

	return c.JSON(http.StatusOK, result)
}

// Clear deletes all history entries.
// DELETE /api/v1/history
func (h *Handlers) Clear(c echo.Context) error {
	if err := h.service.DeleteAll(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to clear history")
	}
	return c.NoContent(http.StatusNoContent)
}

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
