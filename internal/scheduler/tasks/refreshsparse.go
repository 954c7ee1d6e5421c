package tasks

import (
	"context"
	"fmt"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/refresh"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler"
)

// RefreshSparseTaskID returns the scheduler id of the refresh task for kind.
func RefreshSparseTaskID(kind library.Kind) string {
	switch kind {
	case library.KindMovie:
		return "refresh-sparse-movies"
	case library.KindSeries:
		return "refresh-sparse-series"
	case library.KindEpisode:
		return "refresh-sparse-episodes"
	default:
		return "refresh-sparse-" + string(kind)
	}
}

// RefreshSparseFunc adapts a refresh task to the scheduler. A failed pass
// becomes an error; a cancelled pass returns nil and the scheduler records
// the cancellation from the context.
func RefreshSparseFunc(task *refresh.Task) scheduler.TaskFunc {
	return func(ctx context.Context, report scheduler.ProgressFunc) error {
		res, err := task.Run(ctx, refresh.ProgressFunc(report))
		if err != nil {
			return err
		}
		if res.Status == refresh.StatusFailed {
			return fmt.Errorf("refresh %s failed", task.Evaluator().Kind())
		}
		return nil
	}
}

// RegisterRefreshSparseTask registers one refresh task with the scheduler.
func RegisterRefreshSparseTask(sched *scheduler.Scheduler, task *refresh.Task, cron string, runOnStart bool) error {
	e := task.Evaluator()

	return sched.RegisterTask(scheduler.TaskConfig{
		ID:           RefreshSparseTaskID(e.Kind()),
		Name:         e.Name(),
		Description:  e.Description(),
		Cron:         cron,
		RunOnStart:   runOnStart,
		ActivityType: progress.ActivityTypeRefreshSparse,
		Func:         RefreshSparseFunc(task),
	})
}
