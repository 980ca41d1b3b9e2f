package quality

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for quality profile operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates new quality profile handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers the quality profile routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/levels", h.ListLevels)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// List returns all quality profiles.
// GET /api/v1/qualityprofiles
func (h *Handlers) List(c echo.Context) error {
	profiles, err := h.service.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profiles)
}

// ListLevels returns the quality ranking for a media type.
// GET /api/v1/qualityprofiles/levels?mediaType=movie
func (h *Handlers) ListLevels(c echo.Context) error {
	mediaType := MediaType(c.QueryParam("mediaType"))
	if mediaType == "" {
		mediaType = MediaTypeMovie
	}
	levels := Ranking(mediaType)
	if levels == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown media type")
	}
	return c.JSON(http.StatusOK, levels)
}

// Get returns a single quality profile.
// GET /api/v1/qualityprofiles/:id
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	profile, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, profile)
}

// Create creates a new quality profile.
// POST /api/v1/qualityprofiles
func (h *Handlers) Create(c echo.Context) error {
	var input CreateProfileInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	profile, err := h.service.Create(c.Request().Context(), input)
	if err != nil {
		if errors.Is(err, ErrEmptyProfile) || errors.Is(err, ErrCutoffExcluded) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, profile)
}

// Update updates an existing quality profile.
// PUT /api/v1/qualityprofiles/:id
func (h *Handlers) Update(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var input UpdateProfileInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	profile, err := h.service.Update(c.Request().Context(), id, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrProfileNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrEmptyProfile), errors.Is(err, ErrCutoffExcluded):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, profile)
}

// Delete removes a quality profile.
// DELETE /api/v1/qualityprofiles/:id
func (h *Handlers) Delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.service.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
