package tasks

import (
	"context"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/librarysync"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler"
)

const LibrarySyncTaskID = "library-sync"

// RegisterLibrarySyncTask registers the library sync task with the scheduler.
// The task pulls the media server's items into the local store.
func RegisterLibrarySyncTask(sched *scheduler.Scheduler, syncer *librarysync.Syncer, cron string, runOnStart bool) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:           LibrarySyncTaskID,
		Name:         "Library Sync",
		Description:  "Copies movies, series, seasons and episodes from Jellyfin into the local store",
		Cron:         cron,
		RunOnStart:   runOnStart,
		ActivityType: progress.ActivityTypeLibrarySync,
		Func: func(ctx context.Context, report scheduler.ProgressFunc) error {
			_, err := syncer.Run(ctx, report)
			return err
		},
	})
}
