package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskRunning    = errors.New("task is already running")
	ErrTaskNotRunning = errors.New("task is not running")
	ErrTaskExists     = errors.New("task already registered")
)

// historySize is the number of past runs kept per task.
const historySize = 10

// ProgressFunc reports task progress as a percentage.
type ProgressFunc func(percent float64)

// TaskFunc is the function signature for scheduled tasks. A task stopped by
// cancelling ctx should return promptly; its run is recorded as cancelled.
type TaskFunc func(ctx context.Context, report ProgressFunc) error

// TaskConfig contains configuration for a scheduled task.
type TaskConfig struct {
	ID           string
	Name         string
	Description  string
	Cron         string // Cron expression: "0 0 * * *" for midnight daily
	Func         TaskFunc
	RunOnStart   bool // Execute immediately on startup
	ActivityType progress.ActivityType
}

// RunStatus is the final or current state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Trigger says what started a run.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
	TriggerStartup  Trigger = "startup"
)

// RunRecord describes one execution of a task.
type RunRecord struct {
	ID         string     `json:"id"`
	Trigger    Trigger    `json:"trigger"`
	Status     RunStatus  `json:"status"`
	Progress   float64    `json:"progress"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Duration   string     `json:"duration,omitempty"`
}

// TaskInfo contains information about a scheduled task for API responses.
type TaskInfo struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Cron         string      `json:"cron"`
	LastRun      *time.Time  `json:"lastRun,omitempty"`
	NextRun      *time.Time  `json:"nextRun,omitempty"`
	Running      bool        `json:"running"`
	LastStatus   RunStatus   `json:"lastStatus,omitempty"`
	LastProgress float64     `json:"lastProgress"`
	LastError    string      `json:"lastError,omitempty"`
	History      []RunRecord `json:"history"`
}

// RunHook is called after every run with the task id and its final record.
type RunHook func(taskID string, rec RunRecord)

// taskEntry holds internal task state.
type taskEntry struct {
	config  TaskConfig
	job     gocron.Job
	current *RunRecord
	cancel  context.CancelFunc
	history []RunRecord // newest first
}

// Scheduler manages background scheduled tasks.
type Scheduler struct {
	gocron   gocron.Scheduler
	progress *progress.Manager
	logger   zerolog.Logger
	tasks    map[string]*taskEntry
	hook     RunHook
	mu       sync.RWMutex

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new scheduler. progressManager may be nil.
func New(logger zerolog.Logger, progressManager *progress.Manager) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		gocron:     gs,
		progress:   progressManager,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		tasks:      make(map[string]*taskEntry),
		baseCtx:    ctx,
		baseCancel: cancel,
	}, nil
}

// SetRunHook sets the function called after each run finishes.
func (s *Scheduler) SetRunHook(hook RunHook) {
	s.mu.Lock()
	s.hook = hook
	s.mu.Unlock()
}

// RegisterTask registers a new scheduled task. An empty cron registers a
// task that only runs on demand.
func (s *Scheduler) RegisterTask(config TaskConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[config.ID]; exists {
		return fmt.Errorf("%w: %q", ErrTaskExists, config.ID)
	}

	entry := &taskEntry{config: config}

	if config.Cron != "" {
		job, err := s.gocron.NewJob(
			gocron.CronJob(config.Cron, false),
			gocron.NewTask(func() {
				if err := s.start(config.ID, TriggerSchedule); err != nil {
					s.logger.Warn().Err(err).Str("id", config.ID).Msg("Skipped scheduled run")
				}
			}),
			gocron.WithName(config.Name),
			gocron.WithTags(config.ID),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("failed to create job for task %q: %w", config.ID, err)
		}
		entry.job = job
	}

	s.tasks[config.ID] = entry

	s.logger.Info().
		Str("id", config.ID).
		Str("name", config.Name).
		Str("cron", config.Cron).
		Bool("runOnStart", config.RunOnStart).
		Msg("Registered task")

	return nil
}

// start claims the task and launches a run in the background.
func (s *Scheduler) start(taskID string, trigger Trigger) error {
	s.mu.Lock()
	entry, exists := s.tasks[taskID]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	if entry.current != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrTaskRunning, taskID)
	}
	if s.baseCtx.Err() != nil {
		s.mu.Unlock()
		return errors.New("scheduler stopped")
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	run := &RunRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	entry.current = run
	entry.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.executeTask(ctx, entry, run)
	}()
	return nil
}

// executeTask runs a task and records its outcome.
func (s *Scheduler) executeTask(ctx context.Context, entry *taskEntry, run *RunRecord) {
	cfg := entry.config
	logger := s.logger.With().Str("id", cfg.ID).Str("runId", run.ID).Logger()
	logger.Info().Str("name", cfg.Name).Str("trigger", string(run.Trigger)).Msg("Starting task")

	if s.progress != nil {
		s.progress.StartActivity(run.ID, cfg.ActivityType, cfg.Name)
	}

	report := func(percent float64) {
		s.mu.Lock()
		run.Progress = percent
		s.mu.Unlock()
		if s.progress != nil {
			s.progress.UpdateActivity(run.ID, fmt.Sprintf("%.0f%%", percent), int(percent))
		}
	}

	err := s.invoke(ctx, cfg.Func, report)

	finished := time.Now()
	duration := finished.Sub(run.StartedAt)

	s.mu.Lock()
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		run.Status = RunStatusCancelled
	case err != nil:
		run.Status = RunStatusFailed
		run.Error = err.Error()
	default:
		run.Status = RunStatusCompleted
	}
	run.FinishedAt = &finished
	run.Duration = duration.Round(time.Millisecond).String()
	entry.history = append([]RunRecord{*run}, entry.history...)
	if len(entry.history) > historySize {
		entry.history = entry.history[:historySize]
	}
	entry.current = nil
	entry.cancel = nil
	status := run.Status
	final := *run
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(cfg.ID, final)
	}

	switch status {
	case RunStatusCancelled:
		logger.Info().Dur("duration", duration).Msg("Task cancelled")
		if s.progress != nil {
			s.progress.CancelActivity(run.ID)
		}
	case RunStatusFailed:
		logger.Error().Err(err).Dur("duration", duration).Msg("Task failed")
		if s.progress != nil {
			s.progress.FailActivity(run.ID, err.Error())
		}
	default:
		logger.Info().Dur("duration", duration).Msg("Task completed")
		if s.progress != nil {
			s.progress.CompleteActivity(run.ID, "Completed")
		}
	}
}

// invoke runs fn, turning a panic into an error.
func (s *Scheduler) invoke(ctx context.Context, fn TaskFunc, report ProgressFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, report)
}

// Start starts the scheduler and runs any tasks configured with RunOnStart.
func (s *Scheduler) Start() error {
	s.logger.Info().Msg("Starting scheduler")

	s.gocron.Start()

	s.mu.RLock()
	tasksToRun := make([]string, 0)
	for id, entry := range s.tasks {
		if entry.config.RunOnStart {
			tasksToRun = append(tasksToRun, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(tasksToRun)

	for _, taskID := range tasksToRun {
		if err := s.start(taskID, TriggerStartup); err != nil {
			s.logger.Warn().Err(err).Str("id", taskID).Msg("Failed to run task on start")
		}
	}

	return nil
}

// Stop cancels running tasks, waits for them and stops the scheduler.
func (s *Scheduler) Stop() error {
	s.logger.Info().Msg("Stopping scheduler")
	s.baseCancel()
	err := s.gocron.Shutdown()
	s.wg.Wait()
	return err
}

// RunNow manually triggers a task to run immediately.
func (s *Scheduler) RunNow(taskID string) error {
	return s.start(taskID, TriggerManual)
}

// Cancel requests cancellation of a running task.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}
	if entry.cancel == nil {
		return fmt.Errorf("%w: %q", ErrTaskNotRunning, taskID)
	}

	entry.cancel()
	s.logger.Info().Str("id", taskID).Msg("Cancellation requested")
	return nil
}

// ListTasks returns information about all registered tasks, ordered by id.
func (s *Scheduler) ListTasks() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]TaskInfo, 0, len(s.tasks))
	for _, entry := range s.tasks {
		tasks = append(tasks, entry.info())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	return tasks
}

// GetTask returns information about a specific task.
func (s *Scheduler) GetTask(taskID string) (*TaskInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.tasks[taskID]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrTaskNotFound, taskID)
	}

	info := entry.info()
	return &info, nil
}

// info must be called with the scheduler lock held.
func (e *taskEntry) info() TaskInfo {
	info := TaskInfo{
		ID:          e.config.ID,
		Name:        e.config.Name,
		Description: e.config.Description,
		Cron:        e.config.Cron,
		Running:     e.current != nil,
		History:     append([]RunRecord{}, e.history...),
	}

	if e.current != nil {
		info.LastRun = &e.current.StartedAt
		info.LastStatus = e.current.Status
		info.LastProgress = e.current.Progress
	} else if len(e.history) > 0 {
		last := e.history[0]
		info.LastRun = &last.StartedAt
		info.LastStatus = last.Status
		info.LastProgress = last.Progress
		info.LastError = last.Error
	}

	if e.job != nil {
		if nextRun, err := e.job.NextRun(); err == nil && !nextRun.IsZero() {
			info.NextRun = &nextRun
		}
	}

	return info
}
