package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
)

type nopHub struct{}

func (nopHub) Broadcast(string, any) error { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *progress.Manager) {
	t.Helper()

	pm := progress.NewManager(nopHub{}, zerolog.Nop())
	pm.SetRetention(time.Minute)

	s, err := New(zerolog.Nop(), pm)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s, pm
}

func waitIdle(t *testing.T, s *Scheduler, id string) TaskInfo {
	t.Helper()
	var info *TaskInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = s.GetTask(id)
		return err == nil && !info.Running && len(info.History) > 0
	}, 2*time.Second, 5*time.Millisecond)
	return *info
}

func TestScheduler_RunNowRecordsCompletion(t *testing.T) {
	s, pm := newTestScheduler(t)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:           "refresh-sparse-movies",
		Name:         "Refresh sparse movies",
		Cron:         "0 3 * * *",
		ActivityType: progress.ActivityTypeRefreshSparse,
		Func: func(ctx context.Context, report ProgressFunc) error {
			report(50)
			report(100)
			return nil
		},
	}))
	require.NoError(t, s.Start())

	require.NoError(t, s.RunNow("refresh-sparse-movies"))
	info := waitIdle(t, s, "refresh-sparse-movies")

	assert.Equal(t, RunStatusCompleted, info.LastStatus)
	assert.Equal(t, float64(100), info.LastProgress)
	assert.Empty(t, info.LastError)
	require.NotNil(t, info.NextRun)
	require.Len(t, info.History, 1)
	assert.Equal(t, TriggerManual, info.History[0].Trigger)

	activity := pm.GetActivity(info.History[0].ID)
	require.NotNil(t, activity)
	assert.Equal(t, progress.StatusCompleted, activity.Status)
	assert.Equal(t, 100, activity.Progress)
}

func TestScheduler_FailureAndPanic(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "failing",
		Func: func(context.Context, ProgressFunc) error {
			return errors.New("jellyfin unreachable")
		},
	}))
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "panicking",
		Func: func(context.Context, ProgressFunc) error {
			panic("boom")
		},
	}))

	require.NoError(t, s.RunNow("failing"))
	require.NoError(t, s.RunNow("panicking"))

	failing := waitIdle(t, s, "failing")
	assert.Equal(t, RunStatusFailed, failing.LastStatus)
	assert.Equal(t, "jellyfin unreachable", failing.LastError)
	assert.Nil(t, failing.NextRun, "on-demand tasks have no next run")

	panicking := waitIdle(t, s, "panicking")
	assert.Equal(t, RunStatusFailed, panicking.LastStatus)
	assert.Contains(t, panicking.LastError, "boom")
}

func TestScheduler_Cancel(t *testing.T) {
	s, _ := newTestScheduler(t)

	started := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "blocking",
		Func: func(ctx context.Context, report ProgressFunc) error {
			report(30)
			close(started)
			<-ctx.Done()
			return nil
		},
	}))

	assert.ErrorIs(t, s.Cancel("blocking"), ErrTaskNotRunning)

	require.NoError(t, s.RunNow("blocking"))
	<-started

	assert.ErrorIs(t, s.RunNow("blocking"), ErrTaskRunning)
	running, err := s.GetTask("blocking")
	require.NoError(t, err)
	assert.True(t, running.Running)
	assert.Equal(t, RunStatusRunning, running.LastStatus)

	require.NoError(t, s.Cancel("blocking"))
	info := waitIdle(t, s, "blocking")
	assert.Equal(t, RunStatusCancelled, info.LastStatus)
	assert.Equal(t, float64(30), info.LastProgress)
}

func TestScheduler_UnknownAndDuplicate(t *testing.T) {
	s, _ := newTestScheduler(t)

	cfg := TaskConfig{ID: "library-sync", Func: func(context.Context, ProgressFunc) error { return nil }}
	require.NoError(t, s.RegisterTask(cfg))
	assert.ErrorIs(t, s.RegisterTask(cfg), ErrTaskExists)

	assert.ErrorIs(t, s.RunNow("nope"), ErrTaskNotFound)
	assert.ErrorIs(t, s.Cancel("nope"), ErrTaskNotFound)
	_, err := s.GetTask("nope")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	err = s.RegisterTask(TaskConfig{ID: "bad-cron", Cron: "not a cron", Func: cfg.Func})
	assert.Error(t, err)
}

func TestScheduler_RunOnStartAndHistoryLimit(t *testing.T) {
	s, _ := newTestScheduler(t)

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:         "b-task",
		RunOnStart: true,
		Func:       func(context.Context, ProgressFunc) error { return nil },
	}))
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "a-task",
		Func: func(context.Context, ProgressFunc) error { return nil },
	}))
	require.NoError(t, s.Start())

	info := waitIdle(t, s, "b-task")
	assert.Equal(t, TriggerStartup, info.History[0].Trigger)

	for i := 0; i < historySize+2; i++ {
		require.NoError(t, s.RunNow("a-task"))
		require.Eventually(t, func() bool {
			got, _ := s.GetTask("a-task")
			return !got.Running && len(got.History) == min(i+1, historySize)
		}, 2*time.Second, 5*time.Millisecond)
	}

	tasks := s.ListTasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "a-task", tasks[0].ID)
	assert.Len(t, tasks[0].History, historySize)
}

func TestScheduler_StopCancelsRunningTasks(t *testing.T) {
	s, err := New(zerolog.Nop(), nil)
	require.NoError(t, err)

	started := make(chan struct{})
	stopped := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID: "long",
		Func: func(ctx context.Context, _ ProgressFunc) error {
			close(started)
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start())
	require.NoError(t, s.RunNow("long"))
	<-started

	require.NoError(t, s.Stop())
	select {
	case <-stopped:
	default:
		t.Fatal("Stop returned before the running task finished")
	}

	info, err := s.GetTask("long")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, info.LastStatus)
	assert.Error(t, s.RunNow("long"))
}

func TestScheduler_RunHook(t *testing.T) {
	s, _ := newTestScheduler(t)

	records := make(chan RunRecord, 1)
	s.SetRunHook(func(taskID string, rec RunRecord) {
		assert.Equal(t, "library-sync", taskID)
		records <- rec
	})

	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "library-sync",
		Func: func(context.Context, ProgressFunc) error { return errors.New("status 503") },
	}))
	require.NoError(t, s.RunNow("library-sync"))

	select {
	case rec := <-records:
		assert.Equal(t, RunStatusFailed, rec.Status)
		assert.Equal(t, "status 503", rec.Error)
		assert.NotNil(t, rec.FinishedAt)
	case <-time.After(2 * time.Second):
		t.Fatal("run hook was not called")
	}
}
