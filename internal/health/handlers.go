package health

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// CheckFunc probes one item. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Handlers provides HTTP handlers for health endpoints.
type Handlers struct {
	health *Service
	checks map[HealthCategory]map[string]CheckFunc
}

// NewHandlers creates new health handlers.
func NewHandlers(health *Service) *Handlers {
	return &Handlers{
		health: health,
		checks: make(map[HealthCategory]map[string]CheckFunc),
	}
}

// SetCheck registers the probe run by POST /:category/:id/test.
func (h *Handlers) SetCheck(category HealthCategory, id string, check CheckFunc) {
	if h.checks[category] == nil {
		h.checks[category] = make(map[string]CheckFunc)
	}
	h.checks[category][id] = check
}

// RegisterRoutes registers health routes.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetAll)
	g.GET("/summary", h.GetSummary)
	g.GET("/:category", h.GetByCategory)
	g.POST("/:category/:id/test", h.TestItem)
}

// GetAll returns all health items grouped by category.
// GET /api/v1/system/health
func (h *Handlers) GetAll(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.GetAll())
}

// GetSummary returns summary counts.
// GET /api/v1/system/health/summary
func (h *Handlers) GetSummary(c echo.Context) error {
	return c.JSON(http.StatusOK, h.health.GetSummary())
}

// GetByCategory returns health items for a specific category.
// GET /api/v1/system/health/:category
func (h *Handlers) GetByCategory(c echo.Context) error {
	category, ok := ParseCategory(c.Param("category"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid health category")
	}
	return c.JSON(http.StatusOK, h.health.GetByCategory(category))
}

// TestItem runs the probe for one item and records the result.
// POST /api/v1/system/health/:category/:id/test
func (h *Handlers) TestItem(c echo.Context) error {
	category, ok := ParseCategory(c.Param("category"))
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid health category")
	}
	id := c.Param("id")

	if h.health.GetItem(category, id) == nil {
		return echo.NewHTTPError(http.StatusNotFound, "health item not found")
	}
	check, ok := h.checks[category][id]
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "item has no test")
	}

	result := map[string]any{"id": id, "success": true}
	if err := check(c.Request().Context()); err != nil {
		h.health.SetError(category, id, err.Error())
		result["success"] = false
		result["message"] = err.Error()
	} else {
		h.health.ClearStatus(category, id)
	}

	return c.JSON(http.StatusOK, result)
}
