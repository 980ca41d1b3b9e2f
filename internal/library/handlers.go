package library

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for library operations.
type Handlers struct {
	service *Service
}

// NewHandlers creates library HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers library routes on the given group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/wanted", h.ListWanted)
	g.GET("/:id", h.Get)
	g.POST("/:id/files", h.AddFile)
}

// List returns all media items.
func (h *Handlers) List(c echo.Context) error {
	items, err := h.service.ListItems(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list items")
	}
	if items == nil {
		items = []*MediaItem{}
	}
	return c.JSON(http.StatusOK, items)
}

// ListWanted returns monitored items along with their current file state.
func (h *Handlers) ListWanted(c echo.Context) error {
	wanted, err := h.service.ListWanted(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list wanted items")
	}
	if wanted == nil {
		wanted = []WantedItem{}
	}
	return c.JSON(http.StatusOK, wanted)
}

// Create adds a media item.
func (h *Handlers) Create(c echo.Context) error {
	var input CreateItemInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if input.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Title is required")
	}

	item, err := h.service.CreateItem(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create item")
	}
	return c.JSON(http.StatusCreated, item)
}

// Get returns one media item with its current file.
func (h *Handlers) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid item ID")
	}

	item, err := h.service.GetItem(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get item")
	}

	file, err := h.service.CurrentFile(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load item file")
	}

	return c.JSON(http.StatusOK, WantedItem{Item: *item, CurrentFile: file})
}

// AddFile records a file for a media item.
func (h *Handlers) AddFile(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid item ID")
	}

	var input AddFileInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	input.MediaItemID = id
	if input.RelativePath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Relative path is required")
	}

	if _, err := h.service.GetItem(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to get item")
	}

	file, err := h.service.AddFile(c.Request().Context(), input)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to add file")
	}
	return c.JSON(http.StatusCreated, file)
}
