package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	gferrors "github.com/vnykmshr/prioflow/pkg/common/errors"
	"github.com/vnykmshr/prioflow/pkg/common/validation"
	"github.com/vnykmshr/prioflow/pkg/metrics"
	"github.com/vnykmshr/prioflow/pkg/scheduling/workerpool"
)

var (
	// ErrDuplicateID is returned when an entry with the same ID is already scheduled.
	ErrDuplicateID = errors.New("scheduler: entry ID already scheduled")

	// ErrTooManyEntries is returned when Config.MaxTasks entries are already scheduled.
	ErrTooManyEntries = errors.New("scheduler: maximum number of entries reached")

	// ErrRunning is returned by Start on a scheduler that is already running.
	ErrRunning = errors.New("scheduler: already running")
)

const maxIDLength = 255

// Job is the work submitted to the pool each time an entry is due.
type Job func(ctx context.Context) error

// Entry describes a scheduled job.
type Entry struct {
	ID       string
	RunAt    time.Time
	Interval time.Duration // zero for one-shot and cron entries
	Cron     string        // empty unless scheduled with ScheduleCron
	Priority workerpool.Priority
	Created  time.Time
}

// Option customizes a scheduled entry.
type Option func(*entry)

// WithPriority sets the pool priority used each time the entry is submitted.
func WithPriority(p workerpool.Priority) Option {
	return func(e *entry) { e.priority = p }
}

// WithRetry makes each submission of the entry retry failing runs.
func WithRetry(policy workerpool.RetryPolicy) Option {
	return func(e *entry) { e.retry = &policy }
}

// Config holds scheduler configuration.
type Config struct {
	// Pool receives due jobs. If nil, the scheduler creates a pool with
	// four workers and shuts it down on Stop.
	Pool *workerpool.Pool

	Location     *time.Location // for cron entries (default: time.Local)
	TickInterval time.Duration  // how often due entries are collected (default: 50ms)
	MaxTasks     int            // maximum number of entries (default: 10000)

	// Name labels the scheduler in logs and metrics (default: "default").
	Name    string
	Logger  *zap.Logger
	Metrics *metrics.Registry
}

type entry struct {
	id       string
	job      Job
	runAt    time.Time
	interval time.Duration
	cronExpr string
	schedule cron.Schedule
	priority workerpool.Priority
	retry    *workerpool.RetryPolicy
	created  time.Time
}

// Scheduler submits jobs into a worker pool at fixed times, at intervals or
// on cron schedules, each with its own priority.
type Scheduler struct {
	pool         *workerpool.Pool
	ownPool      bool
	location     *time.Location
	tickInterval time.Duration
	maxTasks     int
	name         string
	log          *zap.Logger
	metrics      *metrics.Registry

	mu      sync.RWMutex
	entries map[string]*entry
	done    chan struct{}
	exited  chan struct{}
	running bool
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpression reports whether expr can be used with ScheduleCron.
// Expressions carry a leading seconds field, e.g. "0 */5 * * * *"; descriptors
// such as "@hourly" and "@every 1m" are accepted too.
func ValidateCronExpression(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// New creates a scheduler with its own pool.
func New() *Scheduler {
	s, err := NewWithConfig(Config{})
	if err != nil {
		panic(err)
	}
	return s
}

// NewWithConfig creates a scheduler with custom configuration.
func NewWithConfig(cfg Config) (*Scheduler, error) {
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := cfg.Pool
	ownPool := false
	if pool == nil {
		var err error
		pool, err = workerpool.NewWithConfig(workerpool.Config{
			WorkerCount: 4,
			Name:        "scheduler-" + name,
			Logger:      logger,
			Metrics:     cfg.Metrics,
		})
		if err != nil {
			return nil, err
		}
		ownPool = true
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}

	maxTasks := cfg.MaxTasks
	if maxTasks <= 0 {
		maxTasks = 10000
	}

	return &Scheduler{
		pool:         pool,
		ownPool:      ownPool,
		location:     location,
		tickInterval: tickInterval,
		maxTasks:     maxTasks,
		name:         name,
		log:          logger.With(zap.String("scheduler", name)),
		metrics:      cfg.Metrics,
		entries:      make(map[string]*entry),
	}, nil
}

// Pool returns the pool jobs are submitted to.
func (s *Scheduler) Pool() *workerpool.Pool { return s.pool }

// Schedule runs job once at runAt.
func (s *Scheduler) Schedule(id string, job Job, runAt time.Time, opts ...Option) error {
	if runAt.IsZero() {
		return gferrors.NewValidationError("scheduler", "runAt", runAt, "must not be zero")
	}
	return s.add(&entry{id: id, job: job, runAt: runAt}, opts)
}

// ScheduleAfter runs job once after delay.
func (s *Scheduler) ScheduleAfter(id string, job Job, delay time.Duration, opts ...Option) error {
	return s.Schedule(id, job, time.Now().Add(delay), opts...)
}

// ScheduleRepeating runs job now and then every interval.
func (s *Scheduler) ScheduleRepeating(id string, job Job, interval time.Duration, opts ...Option) error {
	if interval <= 0 {
		return gferrors.NewValidationError("scheduler", "interval", interval, "must be positive")
	}
	return s.add(&entry{id: id, job: job, runAt: time.Now(), interval: interval}, opts)
}

// ScheduleCron runs job on the cron schedule expr, evaluated in
// Config.Location.
func (s *Scheduler) ScheduleCron(id string, expr string, job Job, opts ...Option) error {
	if err := validation.ValidateNotEmpty("scheduler", "cronExpr", expr); err != nil {
		return err
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	return s.add(&entry{
		id:       id,
		job:      job,
		runAt:    schedule.Next(time.Now().In(s.location)),
		cronExpr: expr,
		schedule: schedule,
	}, opts)
}

func (s *Scheduler) add(e *entry, opts []Option) error {
	if err := validation.ValidateNotEmpty("scheduler", "id", e.id); err != nil {
		return err
	}
	if err := validation.ValidateMaxLength("scheduler", "id", e.id, maxIDLength); err != nil {
		return err
	}
	if e.job == nil {
		return gferrors.NewValidationError("scheduler", "job", nil, "must not be nil")
	}

	e.priority = workerpool.PriorityDefault
	for _, opt := range opts {
		opt(e)
	}
	if err := validation.ValidateInRange("scheduler", "priority", int(e.priority),
		int(workerpool.PriorityLow), int(workerpool.PriorityHigh)); err != nil {
		return err
	}
	e.created = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, e.id)
	}
	if len(s.entries) >= s.maxTasks {
		return fmt.Errorf("%w (%d)", ErrTooManyEntries, s.maxTasks)
	}

	s.entries[e.id] = e
	s.recordEntriesLocked()
	s.log.Debug("entry scheduled", zap.String("entry_id", e.id), zap.Time("run_at", e.runAt), zap.Stringer("priority", e.priority))
	return nil
}

// Cancel removes an entry. Submissions already handed to the pool are not
// affected.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		delete(s.entries, id)
		s.recordEntriesLocked()
		return true
	}
	return false
}

// CancelAll removes every entry.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*entry)
	s.recordEntriesLocked()
}

// Next returns when the entry is due next.
func (s *Scheduler) Next(id string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return time.Time{}, false
	}
	return e.runAt, true
}

// List returns the scheduled entries ordered by next run time.
func (s *Scheduler) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, Entry{
			ID:       e.id,
			RunAt:    e.runAt,
			Interval: e.interval,
			Cron:     e.cronExpr,
			Priority: e.priority,
			Created:  e.created,
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].RunAt.Before(list[j].RunAt)
	})
	return list
}

// Start begins collecting due entries.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}

	s.running = true
	s.done = make(chan struct{})
	s.exited = make(chan struct{})
	go s.run(time.NewTicker(s.tickInterval), s.done, s.exited)

	s.log.Info("scheduler started", zap.Duration("tick", s.tickInterval))
	return nil
}

// Stop halts the tick loop. The returned channel is closed once the loop
// has exited and, for a scheduler that owns its pool, the pool has drained.
// An owned pool is not recreated, so restarting such a scheduler only logs
// rejected submissions.
func (s *Scheduler) Stop() <-chan struct{} {
	s.mu.Lock()
	exited := s.exited
	if s.running {
		s.running = false
		close(s.done)
	}
	s.mu.Unlock()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if exited != nil {
			<-exited
		}
		if s.ownPool {
			_ = s.pool.Shutdown()
			_ = s.pool.AwaitTermination(context.Background())
		}
	}()
	return stopped
}

func (s *Scheduler) run(ticker *time.Ticker, done <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) tick(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("recovered fault in scheduler tick", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	for _, e := range s.collectDue(now) {
		s.submit(e)
	}
}

// collectDue returns copies of the due entries, rescheduling repeating and
// cron entries and dropping one-shot ones.
func (s *Scheduler) collectDue(now time.Time) []entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil
	}

	var due []entry
	for id, e := range s.entries {
		if e.runAt.After(now) {
			continue
		}
		due = append(due, *e)

		switch {
		case e.interval > 0:
			e.runAt = now.Add(e.interval)
		case e.schedule != nil:
			e.runAt = e.schedule.Next(now.In(s.location))
		default:
			delete(s.entries, id)
		}
	}
	s.recordEntriesLocked()

	// Hand over the most urgent first so equal ticks respect priority even
	// when the pool has idle workers.
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].priority > due[j].priority
	})
	return due
}

func (s *Scheduler) submit(e entry) {
	opts := []workerpool.SubmitOption{
		workerpool.WithPriority(e.priority),
		workerpool.WithName(e.id),
	}
	if e.retry != nil {
		opts = append(opts, workerpool.WithRetry(*e.retry))
	}

	if _, err := s.pool.Go(e.job, opts...); err != nil {
		s.log.Warn("due entry not submitted", zap.String("entry_id", e.id), zap.Error(err))
		s.recordSubmission(metrics.ResultRejected)
		return
	}
	s.log.Debug("entry submitted", zap.String("entry_id", e.id), zap.Stringer("priority", e.priority))
	s.recordSubmission(metrics.ResultSubmitted)
}

// Must be called with s.mu held.
func (s *Scheduler) recordEntriesLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerEntries.WithLabelValues(s.name).Set(float64(len(s.entries)))
}

func (s *Scheduler) recordSubmission(result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SchedulerSubmissions.WithLabelValues(s.name, result).Inc()
}
