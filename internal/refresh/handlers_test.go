package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/testutil"
)

func setupHandlers(t *testing.T, source OptionsSource) (*echo.Echo, map[string]int64) {
	t.Helper()

	tdb := testutil.NewTestDB(t)
	store := library.NewStore(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	ids := make(map[string]int64)
	for _, item := range []*library.Item{
		{ExternalID: "sparse", Kind: library.KindMovie, Name: "Sparse", CreatedAt: testNow},
		{ExternalID: "full", Kind: library.KindMovie, Name: "Full", Overview: "Plot.", ProviderIDs: map[string]string{"Tmdb": "1"}, CreatedAt: testNow},
		{ExternalID: "show", Kind: library.KindSeries, Name: "Show", CreatedAt: testNow},
	} {
		id, err := store.Upsert(ctx, item)
		require.NoError(t, err)
		ids[item.ExternalID] = id
	}

	logger := testutil.NewTestLogger(t)
	images := library.NewImageChecker()
	movies := NewTask(NewMovieEvaluator(nil, images), store, source, NewDryRunRefresher(logger), logger, WithClock(testutil.FixedClock(testNow)))
	series := NewTask(NewSeriesEvaluator(nil, images), store, source, NewDryRunRefresher(logger), logger, WithClock(testutil.FixedClock(testNow)))

	e := echo.New()
	NewHandlers(store, movies, series).RegisterRoutes(e.Group("/api/v1/refresh"))
	return e, ids
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlers_Explain(t *testing.T) {
	e, ids := setupHandlers(t, &staticOptions{opts: baseOptions()})

	rec := get(e, fmt.Sprintf("/api/v1/refresh/movie/items/%d", ids["sparse"]))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var diag ItemDiagnostics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.True(t, diag.Decision.ShouldRefresh)
	assert.True(t, diag.Eligible)
	assert.True(t, diag.CooledDown)
	assert.Equal(t, []Category{CategoryProviderIDs, CategoryMissingOverview}, categories(diag.Decision.Reasons))

	rec = get(e, fmt.Sprintf("/api/v1/refresh/movie/items/%d", ids["full"]))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.False(t, diag.Decision.ShouldRefresh)
	assert.False(t, diag.Eligible)
}

func TestHandlers_ExplainErrors(t *testing.T) {
	e, ids := setupHandlers(t, &staticOptions{opts: baseOptions()})

	tests := []struct {
		name string
		path string
		code int
	}{
		{"unknown kind", "/api/v1/refresh/book/items/1", http.StatusNotFound},
		{"bad id", "/api/v1/refresh/movie/items/abc", http.StatusBadRequest},
		{"missing item", "/api/v1/refresh/movie/items/9999", http.StatusNotFound},
		{"kind mismatch", fmt.Sprintf("/api/v1/refresh/movie/items/%d", ids["show"]), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, get(e, tt.path).Code)
		})
	}
}

func TestHandlers_Candidates(t *testing.T) {
	e, _ := setupHandlers(t, &staticOptions{opts: baseOptions()})

	rec := get(e, "/api/v1/refresh/movie/candidates")
	require.Equal(t, http.StatusOK, rec.Code)

	var candidates []Candidate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "Sparse", candidates[0].Item.Name)

	rec = get(e, "/api/v1/refresh/series/candidates")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, "Show", candidates[0].Item.Name)
}

func TestHandlers_ConfigurationUnavailable(t *testing.T) {
	e, ids := setupHandlers(t, &staticOptions{err: config.ErrUnavailable})

	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/v1/refresh/movie/candidates").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(e, fmt.Sprintf("/api/v1/refresh/movie/items/%d", ids["sparse"])).Code)
}
