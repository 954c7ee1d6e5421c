package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHub struct{ n int }

func (h *countingHub) Broadcast(string, any) error {
	h.n++
	return nil
}

func TestService_StatusTransitions(t *testing.T) {
	hub := &countingHub{}
	s := NewService(hub, zerolog.Nop())

	s.RegisterItem(CategoryTasks, "refresh-sparse-movies", "Refresh sparse movies")
	s.RegisterItem(CategoryMediaServer, "jellyfin", "Jellyfin")
	assert.True(t, s.IsHealthy(CategoryTasks, "refresh-sparse-movies"))

	s.SetWarning(CategoryTasks, "refresh-sparse-movies", "cancelled")
	s.SetWarning(CategoryMediaServer, "jellyfin", "slow")
	s.SetWarning(CategoryMediaServer, "jellyfin", "slow")

	item := s.GetItem(CategoryTasks, "refresh-sparse-movies")
	require.NotNil(t, item)
	assert.Equal(t, StatusWarning, item.Status)
	require.NotNil(t, item.Timestamp)
	assert.Equal(t, StatusError, s.GetItem(CategoryMediaServer, "jellyfin").Status, "binary categories have no warning")

	summary := s.GetSummary()
	assert.True(t, summary.HasIssues)
	assert.Equal(t, CategorySummary{Category: CategoryMediaServer, Error: 1}, summary.Categories[0])

	s.ClearStatus(CategoryMediaServer, "jellyfin")
	s.ClearStatus(CategoryTasks, "refresh-sparse-movies")
	assert.False(t, s.GetSummary().HasIssues)

	// register x2, warning, error (duplicate skipped), clear x2
	assert.Equal(t, 6, hub.n)

	// Unknown items are ignored.
	s.SetError(CategoryTasks, "missing", "x")
	assert.Nil(t, s.GetItem(CategoryTasks, "missing"))
}

func TestHealthItem_MarshalOmitsOKDetails(t *testing.T) {
	data, err := json.Marshal(HealthItem{ID: "db", Status: StatusOK, Message: "stale"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

func TestHandlers(t *testing.T) {
	s := NewService(nil, zerolog.Nop())
	s.RegisterItem(CategoryMediaServer, "jellyfin", "Jellyfin")
	s.RegisterItem(CategoryStorage, "database", "Library database")

	h := NewHandlers(s)
	failing := true
	h.SetCheck(CategoryMediaServer, "jellyfin", func(context.Context) error {
		if failing {
			return errors.New("connection refused")
		}
		return nil
	})

	e := echo.New()
	h.RegisterRoutes(e.Group("/health"))

	do := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	rec := do(http.MethodPost, "/health/mediaServer/jellyfin/test")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
	assert.Equal(t, StatusError, s.GetItem(CategoryMediaServer, "jellyfin").Status)

	failing = false
	rec = do(http.MethodPost, "/health/mediaServer/jellyfin/test")
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.True(t, s.IsHealthy(CategoryMediaServer, "jellyfin"))

	assert.Equal(t, http.StatusBadRequest, do(http.MethodPost, "/health/storage/database/test").Code)
	assert.Equal(t, http.StatusNotFound, do(http.MethodPost, "/health/tasks/nope/test").Code)
	assert.Equal(t, http.StatusBadRequest, do(http.MethodGet, "/health/bogus").Code)

	rec = do(http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var all HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.MediaServer, 1)
	assert.Len(t, all.Storage, 1)
	assert.Empty(t, all.Tasks)
}
