package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"PatchRadar/internal/ports"
)

// Cadence decides from the local hour whether a task is due.
type Cadence func(now time.Time) bool

// EveryCycle runs on every trigger.
func EveryCycle() Cadence {
	return func(time.Time) bool { return true }
}

// EveryNthHour runs when the hour is a multiple of n.
func EveryNthHour(n int) Cadence {
	if n < 1 {
		n = 1
	}
	return func(now time.Time) bool { return now.Hour()%n == 0 }
}

// DailyAt runs during one hour of the day.
func DailyAt(hour int) Cadence {
	return func(now time.Time) bool { return now.Hour() == hour }
}

// Task is one row of the scheduler table.
type Task struct {
	Name string
	Due  Cadence
	Run  func(ctx context.Context, now time.Time) (any, error)
}

// CycleReport is what a trigger returns: timings, tasks run and per-task errors.
type CycleReport struct {
	StartedAt  time.Time         `json:"startedAt"`
	DurationMs int64             `json:"durationMs"`
	TasksRun   []string          `json:"tasksRun"`
	Timings    map[string]int64  `json:"timings"`
	Errors     map[string]string `json:"errors"`
	Results    map[string]any    `json:"results"`
	Skipped    bool              `json:"skipped,omitempty"`
}

// Scheduler runs the task table, isolating every task's failure.
type Scheduler struct {
	tasks    []Task
	location *time.Location
	driver   ports.Scheduler
	metrics  ports.Metrics
	logger   *slog.Logger
	running  sync.Mutex
}

// NewScheduler builds the scheduler. driver may be nil when cycles are triggered over HTTP only.
func NewScheduler(tasks []Task, location *time.Location, driver ports.Scheduler, metrics ports.Metrics, logger *slog.Logger) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Scheduler{tasks: tasks, location: location, driver: driver, metrics: metrics, logger: logger}
}

// RunCycle executes every due task in table order. A cycle that starts while another
// is still running is skipped and reported as such.
func (s *Scheduler) RunCycle(ctx context.Context, now time.Time) CycleReport {
	local := now.In(s.location)
	report := CycleReport{
		StartedAt: local,
		TasksRun:  []string{},
		Timings:   map[string]int64{},
		Errors:    map[string]string{},
		Results:   map[string]any{},
	}
	if !s.running.TryLock() {
		report.Skipped = true
		s.logger.WarnContext(ctx, "cycle skipped, previous cycle still running")
		return report
	}
	defer s.running.Unlock()

	started := time.Now()
	for _, task := range s.tasks {
		if task.Due != nil && !task.Due(local) {
			continue
		}
		result, elapsed, err := s.runTask(ctx, task, local)
		report.TasksRun = append(report.TasksRun, task.Name)
		report.Timings[task.Name] = elapsed.Milliseconds()
		s.metrics.ObserveTask(task.Name, elapsed, err)
		if err != nil {
			report.Errors[task.Name] = err.Error()
			s.logger.ErrorContext(ctx, "task failed", "task", task.Name, "duration_ms", elapsed.Milliseconds(), "error", err)
			continue
		}
		report.Results[task.Name] = result
		s.logger.InfoContext(ctx, "task finished", "task", task.Name, "duration_ms", elapsed.Milliseconds())
	}
	report.DurationMs = time.Since(started).Milliseconds()
	s.logger.InfoContext(ctx, "cycle finished",
		"tasks", len(report.TasksRun), "errors", len(report.Errors), "duration_ms", report.DurationMs)
	return report
}

func (s *Scheduler) runTask(ctx context.Context, task Task, now time.Time) (result any, elapsed time.Duration, err error) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
		elapsed = time.Since(started)
	}()
	result, err = task.Run(ctx, now)
	return result, time.Since(started), err
}

// Start registers RunCycle with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) {
		_ = s.RunCycle(ctx, trigger)
	})
}

// Stop tears down the driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
