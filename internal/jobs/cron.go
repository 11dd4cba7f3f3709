package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when triggering an unknown task
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskRunning is returned when triggering a task that is already running
var ErrTaskRunning = errors.New("task already running")

// ScheduledTask represents a task run on a schedule
type ScheduledTask struct {
	ID       string
	Schedule Schedule
	Run      TaskFunc
	Config   *TaskConfig
	Enabled  bool
}

// Schedule defines when a task should run
type Schedule interface {
	// Next returns the next execution time after the given time
	Next(t time.Time) time.Time
}

// IntervalSchedule runs a task at fixed intervals
type IntervalSchedule struct {
	Interval time.Duration
}

func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// DailySchedule runs a task at a specific time each day
type DailySchedule struct {
	Hour   int
	Minute int
}

func (s *DailySchedule) Next(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
	if next.Before(t) || next.Equal(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler runs registered tasks when their schedule is due
type Scheduler struct {
	tasks    map[string]*ScheduledTask
	nextRuns map[string]time.Time
	lastRuns map[string]RunInfo
	running  map[string]bool
	mu       sync.RWMutex
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
	tick     time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a new task scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		tasks:    make(map[string]*ScheduledTask),
		nextRuns: make(map[string]time.Time),
		lastRuns: make(map[string]RunInfo),
		running:  make(map[string]bool),
		logger:   logger,
		stopCh:   make(chan struct{}),
		tick:     time.Second,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Register registers a scheduled task
func (s *Scheduler) Register(task *ScheduledTask) {
	if task.Config == nil {
		task.Config = DefaultTaskConfig()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks[task.ID] = task
	s.nextRuns[task.ID] = task.Schedule.Next(s.now())

	s.logger.Info("scheduled task registered",
		"id", task.ID,
		"enabled", task.Enabled,
		"next_run", s.nextRuns[task.ID].Format(time.RFC3339),
	)
}

// Unregister removes a scheduled task
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, id)
	delete(s.nextRuns, id)
	delete(s.lastRuns, id)

	s.logger.Info("scheduled task unregistered", "id", id)
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started")
}

// Stop stops the scheduler and waits for running tasks to return
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Shutdown stops the scheduler, giving up when ctx is done
func (s *Scheduler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx, s.now())
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*ScheduledTask, 0)
	for id, nextRun := range s.nextRuns {
		task, ok := s.tasks[id]
		if ok && task.Enabled && !s.running[id] && !now.Before(nextRun) {
			due = append(due, task)
			s.running[id] = true
		}
	}
	s.mu.Unlock()

	// Execute tasks outside of lock
	for _, task := range due {
		s.wg.Add(1)
		go func(task *ScheduledTask) {
			defer s.wg.Done()
			_ = s.execute(ctx, task)
		}(task)
	}
}

// Trigger runs a task immediately, outside of its schedule, and waits for the result.
func (s *Scheduler) Trigger(ctx context.Context, id string) (RunInfo, error) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return RunInfo{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if s.running[id] {
		s.mu.Unlock()
		return RunInfo{}, fmt.Errorf("%w: %s", ErrTaskRunning, id)
	}
	s.running[id] = true
	s.mu.Unlock()

	err := s.execute(ctx, task)

	s.mu.RLock()
	info := s.lastRuns[id]
	s.mu.RUnlock()
	return info, err
}

func (s *Scheduler) execute(ctx context.Context, task *ScheduledTask) error {
	info := RunInfo{
		RunID:     uuid.NewString(),
		Status:    RunStatusRunning,
		StartedAt: s.now(),
	}
	logger := s.logger.With("task_id", task.ID, "run_id", info.RunID)
	logger.Info("executing scheduled task")

	var err error
	for attempt := 0; attempt <= task.Config.MaxRetries; attempt++ {
		info.Attempts = attempt + 1
		if attempt > 0 {
			delay := CalculateBackoff(task.Config.RetryBackoff, attempt)
			logger.Warn("retrying scheduled task",
				"attempt", info.Attempts,
				"delay", delay.String(),
				"error", err,
			)
			if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
				err = sleepErr
				break
			}
		}

		err = s.attempt(ctx, task)
		if err == nil || ctx.Err() != nil {
			break
		}
	}

	completed := s.now()
	info.CompletedAt = &completed
	info.Duration = completed.Sub(info.StartedAt)

	if err != nil {
		info.Status = RunStatusFailed
		info.Error = err.Error()
		logger.Error("scheduled task failed",
			"attempts", info.Attempts,
			"duration", info.Duration.String(),
			"error", err,
		)
		err = &TaskError{TaskID: task.ID, RunID: info.RunID, Attempts: info.Attempts, Err: err}
	} else {
		info.Status = RunStatusCompleted
		logger.Info("scheduled task completed",
			"attempts", info.Attempts,
			"duration", info.Duration.String(),
		)
	}

	// Update next run time
	s.mu.Lock()
	s.lastRuns[task.ID] = info
	s.running[task.ID] = false
	if _, ok := s.tasks[task.ID]; ok {
		s.nextRuns[task.ID] = task.Schedule.Next(s.now())
	}
	s.mu.Unlock()

	return err
}

func (s *Scheduler) attempt(ctx context.Context, task *ScheduledTask) (err error) {
	if task.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Config.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task.Run(ctx)
}

// List returns all registered tasks ordered by id
func (s *Scheduler) List() []*ScheduledTask {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]*ScheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// NextRun returns the next run time for a task
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nextRun, ok := s.nextRuns[id]
	return nextRun, ok
}

// LastRun returns information about the latest completed run of a task
func (s *Scheduler) LastRun(id string) (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.lastRuns[id]
	return info, ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Helper functions for creating schedules

// Every creates an interval schedule
func Every(interval time.Duration) Schedule {
	return &IntervalSchedule{Interval: interval}
}

// Daily creates a daily schedule
func Daily(hour, minute int) Schedule {
	return &DailySchedule{Hour: hour, Minute: minute}
}
