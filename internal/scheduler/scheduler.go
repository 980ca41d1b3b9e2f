package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// taskEntry holds a single task's state. Each entry has its own lock so one
// slow task never contends with another.
type taskEntry struct {
	mu         sync.Mutex
	def        TaskDefinition
	handler    HandlerFunc
	running    bool
	runStarted time.Time
}

// Scheduler manages recurring background tasks. It is driven by an external
// caller invoking Tick periodically; Tick never blocks on a handler.
type Scheduler struct {
	mu        sync.RWMutex // guards the tasks map, not task state
	tasks     map[TaskType]*taskEntry
	persisted map[TaskType]TaskDefinition
	store     Store
	reporter  Reporter
	logger    zerolog.Logger
}

// New creates a scheduler and loads persisted task state for restart
// recovery. Definitions registered afterwards pick up their persisted
// last-run timestamps.
func New(ctx context.Context, store Store, reporter Reporter, logger zerolog.Logger) (*Scheduler, error) {
	defs, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted tasks: %w", err)
	}

	persisted := make(map[TaskType]TaskDefinition, len(defs))
	for _, def := range defs {
		persisted[def.Type] = def
	}

	return &Scheduler{
		tasks:     make(map[TaskType]*taskEntry),
		persisted: persisted,
		store:     store,
		reporter:  reporter,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}, nil
}

// Register adds a task type with its handler. The definition carries the
// default interval and enabled flag; persisted state, when present, wins
// over the defaults. Fails if the type is already registered.
func (s *Scheduler) Register(ctx context.Context, def TaskDefinition, handler HandlerFunc) error {
	if handler == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[def.Type]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, def.Type)
	}

	if prev, ok := s.persisted[def.Type]; ok {
		def.Interval = prev.Interval
		def.Enabled = prev.Enabled
		def.LastRunAt = prev.LastRunAt
		def.LastDuration = prev.LastDuration
	}

	now := time.Now().UTC()
	def.NextRunAt = computeNextRun(def, now)

	if err := s.store.Save(ctx, def); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", def.Type, err)
	}

	s.tasks[def.Type] = &taskEntry{def: def, handler: handler}

	s.logger.Info().
		Str("task", string(def.Type)).
		Dur("interval", def.Interval).
		Bool("enabled", def.Enabled).
		Msg("Registered task")

	return nil
}

// computeNextRun derives next-run-at from the definition's current state.
// A task that never ran is due immediately; a disabled task has no next run.
// A computed time already in the past makes the task due on the first tick:
// exactly one run happens to catch up, never several.
func computeNextRun(def TaskDefinition, now time.Time) *time.Time {
	if !def.Enabled {
		return nil
	}
	if def.LastRunAt == nil {
		return &now
	}
	next := def.LastRunAt.Add(def.Interval)
	return &next
}

// Tick evaluates every registered task once against the given time and
// starts any that are due. Handlers run on their own goroutines; a task
// already running is skipped for this tick and simply waits for its next
// natural due time.
func (s *Scheduler) Tick(now time.Time) {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		due := e.def.Enabled && !e.running &&
			e.def.NextRunAt != nil && !e.def.NextRunAt.After(now)
		if !due {
			if e.running && e.def.NextRunAt != nil && !e.def.NextRunAt.After(now) {
				s.logger.Debug().
					Str("task", string(e.def.Type)).
					Dur("runningFor", time.Since(e.runStarted)).
					Msg("Task still running, skipping tick")
			}
			e.mu.Unlock()
			continue
		}
		e.running = true
		e.runStarted = time.Now()
		e.mu.Unlock()

		go s.execute(e, now)
	}
}

// RunNow forces immediate execution of a task outside its normal cadence.
// If the task is already running this is a no-op: the skip is reported, not
// surfaced as an error.
func (s *Scheduler) RunNow(taskType TaskType) error {
	s.mu.RLock()
	e, exists := s.tasks[taskType]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskType)
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		s.logger.Info().Str("task", string(taskType)).Msg("Task already running, manual trigger skipped")
		s.reporter.ReportRun(taskType, OutcomeSkipped, 0, nil)
		return nil
	}
	e.running = true
	e.runStarted = time.Now()
	e.mu.Unlock()

	go s.execute(e, time.Now().UTC())
	return nil
}

// execute runs a task's handler and records the outcome. A handler failure
// or panic never propagates: the task returns to idle and is retried at its
// next due time.
func (s *Scheduler) execute(e *taskEntry, start time.Time) {
	e.mu.Lock()
	taskType := e.def.Type
	handler := e.handler
	e.mu.Unlock()

	s.logger.Info().Str("task", string(taskType)).Msg("Starting task")

	wallStart := time.Now()
	err := runHandler(handler)
	elapsed := time.Since(wallStart)

	e.mu.Lock()
	e.def.LastRunAt = &start
	duration := elapsed
	e.def.LastDuration = &duration
	if e.def.Enabled {
		next := start.Add(e.def.Interval)
		e.def.NextRunAt = &next
	} else {
		e.def.NextRunAt = nil
	}
	e.running = false
	def := e.def
	e.mu.Unlock()

	if saveErr := s.store.Save(context.Background(), def); saveErr != nil {
		s.logger.Error().Err(saveErr).Str("task", string(taskType)).Msg("Failed to persist task state")
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		s.logger.Error().Err(err).
			Str("task", string(taskType)).
			Dur("duration", elapsed).
			Msg("Task failed")
	} else {
		s.logger.Info().
			Str("task", string(taskType)).
			Dur("duration", elapsed).
			Msg("Task completed")
	}

	s.reporter.ReportRun(taskType, outcome, elapsed, err)
}

// runHandler invokes a handler, converting a panic into an error so the
// polling loop can never be taken down by a single task.
func runHandler(handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return handler(context.Background())
}

// Enable re-enables a task. Next run is now + interval: re-enabling never
// retroactively catches up missed runs.
func (s *Scheduler) Enable(ctx context.Context, taskType TaskType) error {
	return s.mutate(ctx, taskType, func(def *TaskDefinition) {
		def.Enabled = true
		next := time.Now().UTC().Add(def.Interval)
		def.NextRunAt = &next
	})
}

// Disable disables a task and clears its next run. A disabled task is never
// selected for execution; an in-flight run is not cancelled.
func (s *Scheduler) Disable(ctx context.Context, taskType TaskType) error {
	return s.mutate(ctx, taskType, func(def *TaskDefinition) {
		def.Enabled = false
		def.NextRunAt = nil
	})
}

// SetInterval changes a task's interval and recomputes its next run from
// the last run (or from now if the task never ran).
func (s *Scheduler) SetInterval(ctx context.Context, taskType TaskType, interval time.Duration) error {
	if interval < time.Minute {
		return fmt.Errorf("interval must be at least one minute, got %s", interval)
	}
	return s.mutate(ctx, taskType, func(def *TaskDefinition) {
		def.Interval = interval
		def.NextRunAt = computeNextRun(*def, time.Now().UTC())
	})
}

// mutate applies a change to a task definition under its lock and persists it.
func (s *Scheduler) mutate(ctx context.Context, taskType TaskType, fn func(*TaskDefinition)) error {
	s.mu.RLock()
	e, exists := s.tasks[taskType]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskType)
	}

	e.mu.Lock()
	fn(&e.def)
	def := e.def
	e.mu.Unlock()

	if err := s.store.Save(ctx, def); err != nil {
		return fmt.Errorf("failed to persist task %s: %w", taskType, err)
	}

	s.logger.Info().
		Str("task", string(taskType)).
		Bool("enabled", def.Enabled).
		Dur("interval", def.Interval).
		Msg("Updated task")

	return nil
}

// Tasks returns information about all registered tasks.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.RLock()
	entries := make([]*taskEntry, 0, len(s.tasks))
	for _, e := range s.tasks {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	infos := make([]TaskInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.info())
	}
	return infos
}

// Task returns information about a single task.
func (s *Scheduler) Task(taskType TaskType) (TaskInfo, error) {
	s.mu.RLock()
	e, exists := s.tasks[taskType]
	s.mu.RUnlock()

	if !exists {
		return TaskInfo{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskType)
	}
	return e.info(), nil
}

func (e *taskEntry) info() TaskInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := TaskInfo{
		Type:         e.def.Type,
		Interval:     e.def.Interval,
		Enabled:      e.def.Enabled,
		LastRunAt:    e.def.LastRunAt,
		NextRunAt:    e.def.NextRunAt,
		LastDuration: e.def.LastDuration,
		Running:      e.running,
	}
	if e.running {
		info.RunningFor = time.Since(e.runStarted)
	}
	return info
}
