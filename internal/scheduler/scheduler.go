// Package scheduler runs the periodic audit jobs (archiving, alert checks,
// limiter sweeps).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GoPolymarket/apiaudit/internal/pkg/logger"
)

// TaskFunc performs one run. ctx is cancelled when the scheduler stops or
// the task timeout expires.
type TaskFunc func(ctx context.Context) error

// Schedule defines when a task should run.
type Schedule interface {
	Next(after time.Time) time.Time
}

// IntervalSchedule runs a task at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// Every creates an interval schedule.
func Every(d time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: d}
}

func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.Interval)
}

type Task struct {
	ID         string
	Name       string
	Schedule   Schedule
	Func       TaskFunc
	RunOnStart bool
	Timeout    time.Duration
}

type TaskStatus struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitempty"`
	RunCount     int64         `json:"run_count"`
	ErrorCount   int64         `json:"error_count"`
}

type taskEntry struct {
	task    *Task
	status  TaskStatus
	nextRun time.Time
	running bool
}

// Scheduler 管理周期任务；同一任务不会并发执行
type Scheduler struct {
	mu      sync.RWMutex
	tasks   map[string]*taskEntry
	tick    time.Duration
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates a scheduler that checks for due tasks every tick.
func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*taskEntry),
		tick:   tick,
		log:    logger.Component("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) AddTask(task *Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if task.Schedule == nil {
		return fmt.Errorf("task schedule is required")
	}
	if task.Func == nil {
		return fmt.Errorf("task function is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	entry := &taskEntry{
		task:    task,
		status:  TaskStatus{ID: task.ID, Name: task.Name},
		nextRun: task.Schedule.Next(time.Now()),
	}
	entry.status.NextRun = entry.nextRun
	s.tasks[task.ID] = entry
	s.log.Info("task added", "id", task.ID, "name", task.Name)
	return nil
}

// RunTask runs a task now and waits for it. It returns the task's error.
func (s *Scheduler) RunTask(id string) error {
	s.mu.RLock()
	entry, exists := s.tasks[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("task %s not found", id)
	}
	if !s.claim(entry) {
		return fmt.Errorf("task %s is already running", id)
	}
	s.wg.Add(1)
	return s.execute(entry)
}

func (s *Scheduler) GetStatus() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]TaskStatus, 0, len(s.tasks))
	for _, entry := range s.tasks {
		statuses = append(statuses, entry.status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

func (s *Scheduler) GetTaskStatus(id string) (TaskStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, exists := s.tasks[id]
	if !exists {
		return TaskStatus{}, false
	}
	return entry.status, true
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	count := len(s.tasks)
	var onStart []*taskEntry
	for _, entry := range s.tasks {
		if entry.task.RunOnStart {
			onStart = append(onStart, entry)
		}
	}
	s.mu.Unlock()

	s.log.Info("scheduler started", "tasks", count)
	for _, entry := range onStart {
		s.spawn(entry)
	}
	go s.run()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(now)
		}
	}
}

func (s *Scheduler) runDue(now time.Time) {
	s.mu.RLock()
	var due []*taskEntry
	for _, entry := range s.tasks {
		if !entry.running && !now.Before(entry.nextRun) {
			due = append(due, entry)
		}
	}
	s.mu.RUnlock()

	for _, entry := range due {
		s.spawn(entry)
	}
}

func (s *Scheduler) spawn(entry *taskEntry) {
	if !s.claim(entry) {
		return
	}
	s.wg.Add(1)
	go func() { _ = s.execute(entry) }()
}

func (s *Scheduler) claim(entry *taskEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.running || s.ctx.Err() != nil {
		return false
	}
	entry.running = true
	return true
}

func (s *Scheduler) execute(entry *taskEntry) (err error) {
	defer s.wg.Done()
	task := entry.task

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if task.Timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, task.Timeout)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panic: %v", task.ID, rec)
		}
		duration := time.Since(start)

		s.mu.Lock()
		entry.running = false
		entry.status.LastRun = start
		entry.status.LastDuration = duration
		entry.status.RunCount++
		if err != nil {
			entry.status.LastError = err.Error()
			entry.status.ErrorCount++
		} else {
			entry.status.LastError = ""
		}
		entry.nextRun = task.Schedule.Next(time.Now())
		entry.status.NextRun = entry.nextRun
		s.mu.Unlock()

		if err != nil {
			s.log.Warn("task failed", "id", task.ID, "error", err, "duration", duration)
		} else {
			s.log.Debug("task completed", "id", task.ID, "duration", duration)
		}
	}()

	return task.Func(ctx)
}
