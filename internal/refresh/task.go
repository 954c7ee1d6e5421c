package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
)

// Status is the state of a task execution.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ProgressFunc receives progress as a percentage in [0, 100].
type ProgressFunc func(percent float64)

// Refresher asks the media server to refresh one item.
type Refresher interface {
	Refresh(ctx context.Context, item *library.Item, opts library.RefreshOptions) error
}

// OptionsSource supplies the refresh settings, re-read on every call.
type OptionsSource interface {
	RefreshOptions() (config.RefreshOptions, error)
}

// Result summarizes one execution.
type Result struct {
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Refreshed  int       `json:"refreshed"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Candidate is an item selected for refresh together with its deficiencies.
type Candidate struct {
	Item    *library.Item `json:"item"`
	Reasons []Deficiency  `json:"missingReasons"`
}

// Task drives refreshes of sparse items for one evaluator.
type Task struct {
	evaluator Evaluator
	store     ItemQuerier
	options   OptionsSource
	refresher Refresher
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	status Status
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithClock overrides the clock used for the age window and cooldown.
func WithClock(now func() time.Time) TaskOption {
	return func(t *Task) { t.now = now }
}

// NewTask creates a refresh task.
func NewTask(e Evaluator, store ItemQuerier, options OptionsSource, refresher Refresher, logger zerolog.Logger, opts ...TaskOption) *Task {
	t := &Task{
		evaluator: e,
		store:     store,
		options:   options,
		refresher: refresher,
		logger:    logger.With().Str("task", "refresh-sparse").Str("kind", string(e.Kind())).Logger(),
		now:       time.Now,
		status:    StatusNotStarted,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Evaluator returns the task's evaluator.
func (t *Task) Evaluator() Evaluator {
	return t.evaluator
}

// Status returns the state of the current or last execution.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Criteria reads the current settings into a snapshot.
func (t *Task) Criteria() (Criteria, error) {
	opts, err := t.options.RefreshOptions()
	if err != nil {
		return Criteria{}, fmt.Errorf("%w: %w", ErrConfigurationUnavailable, err)
	}
	return NewCriteria(opts, t.now())
}

// Eligible reports whether an item passes every gate of a pass: premiere
// window, cooldown and the metadata checks.
func (t *Task) Eligible(item *library.Item, c Criteria) bool {
	return c.InPremiereWindow(item) && c.CooledDown(item) && t.evaluator.NeedsRefresh(item, c)
}

// Run executes one pass. Cancellation through ctx stops before the next item
// and is reported as StatusCancelled with a nil error.
func (t *Task) Run(ctx context.Context, report ProgressFunc) (*Result, error) {
	if report == nil {
		report = func(float64) {}
	}

	res := &Result{Status: StatusRunning, StartedAt: t.now()}
	t.setStatus(StatusRunning)

	finish := func(s Status, err error) (*Result, error) {
		res.Status = s
		res.FinishedAt = t.now()
		t.setStatus(s)
		return res, err
	}

	criteria, err := t.Criteria()
	if err != nil {
		t.logger.Error().Err(err).Msg("Failed to read refresh configuration")
		return finish(StatusFailed, err)
	}

	candidates, err := t.collect(ctx, criteria)
	if err != nil {
		if ctx.Err() != nil {
			t.logger.Info().Msg("Refresh cancelled while selecting candidates")
			return finish(StatusCancelled, nil)
		}
		t.logger.Error().Err(err).Msg("Failed to select candidates")
		return finish(StatusFailed, err)
	}

	res.Total = len(candidates)
	t.logger.Info().
		Int("candidates", res.Total).
		Int("maxDays", criteria.MaxDays).
		Int("cooldownMinutes", criteria.RefreshCooldownMinutes).
		Msg("Starting sparse refresh")

	for _, item := range candidates {
		if ctx.Err() != nil {
			t.logger.Info().
				Int("processed", res.Processed).
				Int("total", res.Total).
				Msg("Sparse refresh cancelled")
			return finish(StatusCancelled, nil)
		}

		t.refreshOne(ctx, item, criteria, res)
		res.Processed++
		report(float64(res.Processed*100) / float64(res.Total))
	}

	if res.Total == 0 {
		report(100)
	}

	t.logger.Info().
		Int("refreshed", res.Refreshed).
		Int("failed", res.Failed).
		Int("total", res.Total).
		Msg("Sparse refresh completed")

	return finish(StatusCompleted, nil)
}

func (t *Task) refreshOne(ctx context.Context, item *library.Item, c Criteria, res *Result) {
	t.logger.Info().
		Int64("itemId", item.ID).
		Str("externalId", item.ExternalID).
		Msgf("%s %q has sparse metadata", t.evaluator.ItemTypeName(), item.Name)
	for _, d := range t.evaluator.ExplainDeficiencies(item, c) {
		t.logger.Info().Int64("itemId", item.ID).Str("category", string(d.Category)).Msg("    " + d.Message)
	}

	opts := t.evaluator.RefreshIntensity()
	if err := t.safeRefresh(ctx, item, opts); err != nil {
		res.Failed++
		t.logger.Warn().Err(err).Int64("itemId", item.ID).Str("name", item.Name).Msg("Failed to refresh item")
		return
	}
	res.Refreshed++
	t.logger.Debug().
		Int64("itemId", item.ID).
		Bool("replaceAllImages", opts.ReplaceAllImages).
		Bool("replaceAllMetadata", opts.ReplaceAllMetadata).
		Msg("Refresh requested")
}

// safeRefresh turns a refresher panic into an error so one item cannot end
// the pass.
func (t *Task) safeRefresh(ctx context.Context, item *library.Item, opts library.RefreshOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher panic: %v", r)
		}
	}()
	return t.refresher.Refresh(ctx, item, opts)
}

// collect materializes the filtered candidates. The store's sequence holds
// the database connection until it is drained, so it is consumed up front.
func (t *Task) collect(ctx context.Context, c Criteria) ([]*library.Item, error) {
	var out []*library.Item
	for item, err := range t.evaluator.SelectCandidates(ctx, c, t.store) {
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrItemQuery, err)
		}
		if t.Eligible(item, c) {
			out = append(out, item)
		}
	}
	return out, nil
}

// Preview returns the items the next pass would refresh, without refreshing.
func (t *Task) Preview(ctx context.Context) ([]Candidate, error) {
	criteria, err := t.Criteria()
	if err != nil {
		return nil, err
	}
	items, err := t.collect(ctx, criteria)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(items))
	for _, item := range items {
		out = append(out, Candidate{Item: item, Reasons: t.evaluator.ExplainDeficiencies(item, criteria)})
	}
	return out, nil
}

// DryRunRefresher logs refresh requests without contacting a media server.
type DryRunRefresher struct {
	logger zerolog.Logger
}

// NewDryRunRefresher creates a DryRunRefresher.
func NewDryRunRefresher(logger zerolog.Logger) *DryRunRefresher {
	return &DryRunRefresher{logger: logger.With().Str("component", "dry-run-refresher").Logger()}
}

// Refresh logs the request.
func (r *DryRunRefresher) Refresh(_ context.Context, item *library.Item, opts library.RefreshOptions) error {
	r.logger.Info().
		Int64("itemId", item.ID).
		Str("name", item.Name).
		Bool("replaceAllImages", opts.ReplaceAllImages).
		Bool("replaceAllMetadata", opts.ReplaceAllMetadata).
		Msg("Dry run: would refresh item")
	return nil
}
