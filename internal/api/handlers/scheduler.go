package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler"
)

// SchedulerHandler handles scheduler-related API requests.
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler creates a new scheduler handler.
func NewSchedulerHandler(sched *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: sched,
	}
}

// RegisterRoutes registers scheduler routes on the given group.
func (h *SchedulerHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/tasks", h.ListTasks)
	g.GET("/tasks/:id", h.GetTask)
	g.POST("/tasks/:id/run", h.RunTask)
	g.POST("/tasks/:id/cancel", h.CancelTask)
}

// ListTasks returns all scheduled tasks.
// GET /api/v1/scheduler/tasks
func (h *SchedulerHandler) ListTasks(c echo.Context) error {
	tasks := h.scheduler.ListTasks()
	return c.JSON(http.StatusOK, tasks)
}

// GetTask returns information about a specific task.
// GET /api/v1/scheduler/tasks/:id
func (h *SchedulerHandler) GetTask(c echo.Context) error {
	taskID := c.Param("id")
	task, err := h.scheduler.GetTask(taskID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

// RunTask manually triggers a task to run.
// POST /api/v1/scheduler/tasks/:id/run
func (h *SchedulerHandler) RunTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := h.scheduler.RunNow(taskID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Task started",
		"taskId":  taskID,
	})
}

// CancelTask requests cancellation of a running task. The run stops before
// its next item.
// POST /api/v1/scheduler/tasks/:id/cancel
func (h *SchedulerHandler) CancelTask(c echo.Context) error {
	taskID := c.Param("id")
	if err := h.scheduler.Cancel(taskID); err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "Cancellation requested",
		"taskId":  taskID,
	})
}

func errorResponse(c echo.Context, err error) error {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, scheduler.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrTaskRunning), errors.Is(err, scheduler.ErrTaskNotRunning):
		status = http.StatusConflict
	}
	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}
