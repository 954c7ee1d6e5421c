package refresh

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/testutil"
)

type staticOptions struct {
	opts  config.RefreshOptions
	err   error
	reads int
}

func (s *staticOptions) RefreshOptions() (config.RefreshOptions, error) {
	s.reads++
	return s.opts, s.err
}

// sliceStore serves items in slice order and records the last query.
type sliceStore struct {
	items []*library.Item
	err   error
	last  library.Query
}

func (s *sliceStore) QueryItems(_ context.Context, q library.Query) iter.Seq2[*library.Item, error] {
	s.last = q
	return func(yield func(*library.Item, error) bool) {
		for _, item := range s.items {
			if !yield(item, nil) {
				return
			}
		}
		if s.err != nil {
			yield(nil, s.err)
		}
	}
}

type recordingRefresher struct {
	seen   []string
	opts   []library.RefreshOptions
	failOn map[string]error
	after  func(n int)
}

func (r *recordingRefresher) Refresh(_ context.Context, item *library.Item, opts library.RefreshOptions) error {
	r.seen = append(r.seen, item.Name)
	r.opts = append(r.opts, opts)
	if r.after != nil {
		r.after(len(r.seen))
	}
	return r.failOn[item.Name]
}

// sparseItems returns n items with no provider ids, named item-01..item-n.
func sparseItems(n int) []*library.Item {
	items := make([]*library.Item, n)
	for i := range items {
		items[i] = &library.Item{
			ID:       int64(i + 1),
			Kind:     library.KindMovie,
			Name:     fmt.Sprintf("item-%02d", i+1),
			Overview: "overview",
		}
	}
	return items
}

func newTestTask(t *testing.T, store ItemQuerier, opts OptionsSource, refresher Refresher, intensity IntensitySource) *Task {
	t.Helper()
	e := NewMovieEvaluator(intensity, library.NewImageChecker())
	return NewTask(e, store, opts, refresher, testutil.NewTestLogger(t), WithClock(testutil.FixedClock(testNow)))
}

func TestTask_RunRefreshesAllCandidates(t *testing.T) {
	store := &sliceStore{items: sparseItems(4)}
	refresher := &recordingRefresher{}
	intensity := &fakeIntensity{images: true}
	task := newTestTask(t, store, &staticOptions{opts: baseOptions()}, refresher, intensity)

	assert.Equal(t, StatusNotStarted, task.Status())

	var progress []float64
	res, err := task.Run(context.Background(), func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, StatusCompleted, task.Status())
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 4, res.Refreshed)
	assert.Equal(t, []string{"item-01", "item-02", "item-03", "item-04"}, refresher.seen)
	assert.Equal(t, []float64{25, 50, 75, 100}, progress)
	for _, o := range refresher.opts {
		assert.Equal(t, library.RefreshOptions{ReplaceAllImages: true}, o)
	}

	assert.Equal(t, []library.Kind{library.KindMovie}, store.last.Kinds)
	assert.True(t, store.last.ExcludeVirtual)
	assert.True(t, store.last.Recursive)
	assert.Nil(t, store.last.MinDateCreated)
	assert.Equal(t, []library.Order{{Field: library.SortBySortName, Direction: library.Ascending}}, store.last.OrderBy)
}

func TestTask_RunFiltersIneligible(t *testing.T) {
	opts := baseOptions()
	opts.MaxDays = 30
	opts.NameIsDate = false

	items := sparseItems(4)
	items[0].ProviderIDs = map[string]string{"Tmdb": "1"}               // complete
	items[1].LastRefreshedAt = testutil.Ptr(testNow.Add(-5 * time.Minute)) // cooling down
	items[2].PremiereDate = testutil.Ptr(testNow.AddDate(0, 0, -60))       // premiered too long ago
	items[3].LastRefreshedAt = testutil.Ptr(testNow.Add(-11 * time.Minute))

	store := &sliceStore{items: items}
	refresher := &recordingRefresher{}
	task := newTestTask(t, store, &staticOptions{opts: opts}, refresher, nil)

	res, err := task.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, []string{"item-04"}, refresher.seen)
	require.NotNil(t, store.last.MinDateCreated)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), *store.last.MinDateCreated)
}

func TestTask_RunReadsConfigurationEachPass(t *testing.T) {
	source := &staticOptions{opts: baseOptions()}
	source.opts.NameIsDate = false
	refresher := &recordingRefresher{}
	task := newTestTask(t, &sliceStore{items: sparseItems(1)}, source, refresher, nil)

	_, err := task.Run(context.Background(), nil)
	require.NoError(t, err)

	// Lowering the threshold to zero makes the item complete for the next pass.
	source.opts.MinimumProviderIDs = 0
	res, err := task.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, source.reads)
	assert.Equal(t, 0, res.Total)
	assert.Len(t, refresher.seen, 1)
}

func TestTask_RunCancelledAfterThirdItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := &recordingRefresher{after: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	task := newTestTask(t, &sliceStore{items: sparseItems(10)}, &staticOptions{opts: baseOptions()}, refresher, nil)

	var progress []float64
	res, err := task.Run(ctx, func(p float64) { progress = append(progress, p) })
	require.NoError(t, err, "cancellation is a clean stop")

	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, StatusCancelled, task.Status())
	assert.Equal(t, []string{"item-01", "item-02", "item-03"}, refresher.seen)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 10, res.Total)
	assert.Equal(t, []float64{10, 20, 30}, progress)
}

func TestTask_RunContinuesAfterRefresherFault(t *testing.T) {
	refresher := &recordingRefresher{failOn: map[string]error{"item-03": errors.New("server said no")}}
	task := newTestTask(t, &sliceStore{items: sparseItems(10)}, &staticOptions{opts: baseOptions()}, refresher, nil)

	var last float64
	res, err := task.Run(context.Background(), func(p float64) {
		assert.GreaterOrEqual(t, p, last, "progress is monotonic")
		last = p
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, refresher.seen, 10)
	assert.Equal(t, 9, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, float64(100), last)
}

func TestTask_RunContinuesAfterRefresherPanic(t *testing.T) {
	refresher := &recordingRefresher{after: func(n int) {
		if n == 2 {
			panic("nil map write")
		}
	}}
	task := newTestTask(t, &sliceStore{items: sparseItems(4)}, &staticOptions{opts: baseOptions()}, refresher, nil)

	res, err := task.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Len(t, refresher.seen, 4)
	assert.Equal(t, 3, res.Refreshed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 4, res.Processed)
}

func TestTask_RunConfigurationUnavailable(t *testing.T) {
	store := &sliceStore{items: sparseItems(2)}
	refresher := &recordingRefresher{}
	task := newTestTask(t, store, &staticOptions{err: config.ErrUnavailable}, refresher, nil)

	res, err := task.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfigurationUnavailable)
	assert.ErrorIs(t, err, config.ErrUnavailable)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, refresher.seen)
	assert.Empty(t, store.last.Kinds, "store never queried")
}

func TestTask_RunItemQueryFailure(t *testing.T) {
	store := &sliceStore{items: sparseItems(2), err: errors.New("disk I/O error")}
	refresher := &recordingRefresher{}
	task := newTestTask(t, store, &staticOptions{opts: baseOptions()}, refresher, nil)

	res, err := task.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrItemQuery)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, refresher.seen, "no item processed when enumeration fails")
}

func TestTask_RunNoCandidates(t *testing.T) {
	task := newTestTask(t, &sliceStore{}, &staticOptions{opts: baseOptions()}, &recordingRefresher{}, nil)

	var progress []float64
	res, err := task.Run(context.Background(), func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []float64{100}, progress)
}

func TestTask_Preview(t *testing.T) {
	items := sparseItems(2)
	items[1].ProviderIDs = map[string]string{"Imdb": "tt1"}
	refresher := &recordingRefresher{}
	task := newTestTask(t, &sliceStore{items: items}, &staticOptions{opts: baseOptions()}, refresher, nil)

	candidates, err := task.Preview(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "item-01", candidates[0].Item.Name)
	assert.Equal(t, []Category{CategoryProviderIDs}, categories(candidates[0].Reasons))
	assert.Empty(t, refresher.seen)
}

// The age window and ordering go through the real SQLite store.
func TestTask_RunAgainstStore(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := library.NewStore(tdb.Conn, tdb.Logger)
	ctx := context.Background()

	for _, item := range []*library.Item{
		{ExternalID: "lib", Kind: library.KindFolder, Name: "Movies", CreatedAt: testNow},
		{ExternalID: "c", ParentExternalID: "lib", Kind: library.KindMovie, Name: "charlie", CreatedAt: testNow.AddDate(0, 0, -1)},
		{ExternalID: "a", ParentExternalID: "lib", Kind: library.KindMovie, Name: "Alpha", CreatedAt: testNow.AddDate(0, 0, -31)},
		{ExternalID: "b", ParentExternalID: "lib", Kind: library.KindMovie, Name: "bravo", CreatedAt: testNow.AddDate(0, 0, -2)},
		{ExternalID: "v", ParentExternalID: "lib", Kind: library.KindMovie, Name: "Virtual", IsVirtual: true, CreatedAt: testNow},
		{ExternalID: "s", ParentExternalID: "lib", Kind: library.KindSeries, Name: "Series", CreatedAt: testNow},
	} {
		_, err := store.Upsert(ctx, item)
		require.NoError(t, err)
	}

	t.Run("no age limit", func(t *testing.T) {
		refresher := &recordingRefresher{}
		task := newTestTask(t, store, &staticOptions{opts: baseOptions()}, refresher, nil)

		_, err := task.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"Alpha", "bravo", "charlie"}, refresher.seen)
	})

	t.Run("thirty days", func(t *testing.T) {
		opts := baseOptions()
		opts.MaxDays = 30
		refresher := &recordingRefresher{}
		task := newTestTask(t, store, &staticOptions{opts: opts}, refresher, nil)

		_, err := task.Run(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"bravo", "charlie"}, refresher.seen, "item created 31 days ago excluded")
	})
}

func TestDryRunRefresher(t *testing.T) {
	r := NewDryRunRefresher(testutil.NewTestLogger(t))
	assert.NoError(t, r.Refresh(context.Background(), &library.Item{ID: 1, Name: "x"}, library.RefreshOptions{}))
}
