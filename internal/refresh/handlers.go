package refresh

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// ItemGetter loads a single item.
type ItemGetter interface {
	Get(ctx context.Context, id int64) (*library.Item, error)
}

// Handlers provides HTTP handlers for refresh diagnostics.
type Handlers struct {
	tasks map[library.Kind]*Task
	items ItemGetter
}

// NewHandlers creates refresh handlers for the given tasks.
func NewHandlers(items ItemGetter, tasks ...*Task) *Handlers {
	h := &Handlers{
		tasks: make(map[library.Kind]*Task, len(tasks)),
		items: items,
	}
	for _, t := range tasks {
		h.tasks[t.Evaluator().Kind()] = t
	}
	return h
}

// RegisterRoutes registers refresh routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/:kind/items/:id", h.Explain)
	g.GET("/:kind/candidates", h.Candidates)
}

// ItemDiagnostics is the evaluation of one item against current settings.
type ItemDiagnostics struct {
	Item             *library.Item `json:"item"`
	Decision         Decision      `json:"decision"`
	InPremiereWindow bool          `json:"inPremiereWindow"`
	CooledDown       bool          `json:"cooledDown"`
	Eligible         bool          `json:"eligible"`
	Criteria         Criteria      `json:"criteria"`
}

// Explain returns the decision for one item.
// GET /api/v1/refresh/:kind/items/:id
func (h *Handlers) Explain(c echo.Context) error {
	task, err := h.task(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid item id")
	}

	item, err := h.items.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if item.Kind != task.Evaluator().Kind() {
		return echo.NewHTTPError(http.StatusBadRequest, "item is a "+string(item.Kind)+", not a "+c.Param("kind"))
	}

	criteria, err := task.Criteria()
	if err != nil {
		return configError(err)
	}

	return c.JSON(http.StatusOK, ItemDiagnostics{
		Item:             item,
		Decision:         Decide(task.Evaluator(), item, criteria),
		InPremiereWindow: criteria.InPremiereWindow(item),
		CooledDown:       criteria.CooledDown(item),
		Eligible:         task.Eligible(item, criteria),
		Criteria:         criteria,
	})
}

// Candidates returns the items the next run would refresh.
// GET /api/v1/refresh/:kind/candidates
func (h *Handlers) Candidates(c echo.Context) error {
	task, err := h.task(c)
	if err != nil {
		return err
	}

	candidates, err := task.Preview(c.Request().Context())
	if err != nil {
		if errors.Is(err, ErrConfigurationUnavailable) {
			return configError(err)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, candidates)
}

func (h *Handlers) task(c echo.Context) (*Task, error) {
	task, ok := h.tasks[library.Kind(c.Param("kind"))]
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, ErrUnknownKind.Error()+": "+c.Param("kind"))
	}
	return task, nil
}

func configError(err error) error {
	return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
}
