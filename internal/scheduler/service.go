// Package scheduler is the engine's single entry point: it owns the
// dispatch and cleanup ticks and the event mutation API.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eventsched/internal/dispatch"
	"eventsched/internal/events"
	"eventsched/internal/retention"
	logx "eventsched/pkg/logx"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	DefaultDispatchSchedule = "1m"
	DefaultCleanupSchedule  = "1h"
	DefaultTimezone         = "Africa/Nairobi"

	taskDispatch = "dispatch"
	taskCleanup  = "cleanup"
)

// ErrBusy is returned by RunDispatch/RunCleanup while the same tick is still running.
var ErrBusy = errors.New("tick already in progress")

type Config struct {
	// Location is the fixed evaluation zone. nil means DefaultTimezone.
	Location         *time.Location
	DispatchSchedule string
	CleanupSchedule  string
}

// Status is a point-in-time view of the orchestrator.
type Status struct {
	Running      bool            `json:"running"`
	TasksActive  int             `json:"tasksActive"`
	LastDispatch time.Time       `json:"lastDispatch"`
	LastCleanup  time.Time       `json:"lastCleanup"`
	LastReport   dispatch.Report `json:"lastReport"`
	LastDeleted  int             `json:"lastDeleted"`
}

type Option func(*Service)

// WithClock replaces time.Now for tick evaluation and record stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDs replaces the event id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

type Service struct {
	repo       *events.Repo
	dispatcher *dispatch.Dispatcher
	cleaner    *retention.Cleaner
	log        logx.Logger
	now        func() time.Time
	newID      func() string

	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	c       *cron.Cron
	entries map[string]cron.EntryID
	tickCtx context.Context // base context of registered ticks

	dispatching atomic.Bool
	cleaning    atomic.Bool

	smu          sync.Mutex
	lastDispatch time.Time
	lastCleanup  time.Time
	lastReport   dispatch.Report
	lastDeleted  int
}

func New(cfg Config, repo *events.Repo, dispatcher *dispatch.Dispatcher, cleaner *retention.Cleaner, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		repo:       repo,
		dispatcher: dispatcher,
		cleaner:    cleaner,
		log:        log.With(logx.String("comp", "scheduler")),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.cfg, s.loc = normalize(cfg)
	return s
}

func normalize(cfg Config) (Config, *time.Location) {
	if strings.TrimSpace(cfg.DispatchSchedule) == "" {
		cfg.DispatchSchedule = DefaultDispatchSchedule
	}
	if strings.TrimSpace(cfg.CleanupSchedule) == "" {
		cfg.CleanupSchedule = DefaultCleanupSchedule
	}
	loc := cfg.Location
	if loc == nil {
		if l, err := time.LoadLocation(DefaultTimezone); err == nil {
			loc = l
		} else {
			loc = time.UTC
		}
	}
	cfg.Location = loc
	return cfg, loc
}

// Location is the zone ticks are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Start registers both ticks and runs one dispatch pass before returning.
// Starting a running service logs a warning and returns nil.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.c != nil {
		s.mu.Unlock()
		s.log.Warn("start ignored; already running")
		return nil
	}

	dsched, err := compile(s.cfg.DispatchSchedule)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("dispatch schedule: %w", err)
	}
	csched, err := compile(s.cfg.CleanupSchedule)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cleanup schedule: %w", err)
	}

	// ticks outlive the caller's ctx; Stop only prevents future ticks
	tickCtx := context.WithoutCancel(ctx)
	s.tickCtx = tickCtx
	s.startCronLocked(dsched, csched)
	loc := s.loc
	cfg := s.cfg
	s.mu.Unlock()

	s.log.Info("service started",
		logx.String("tz", loc.String()),
		logx.String("dispatch", cfg.DispatchSchedule),
		logx.String("cleanup", cfg.CleanupSchedule),
	)

	if _, err := s.RunDispatch(tickCtx); err != nil && !errors.Is(err, ErrBusy) {
		s.log.Warn("initial dispatch failed", logx.Err(err))
	}
	return nil
}

func (s *Service) startCronLocked(dsched, csched cron.Schedule) {
	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	ctx := s.tickCtx
	s.entries = map[string]cron.EntryID{
		taskDispatch: c.Schedule(dsched, cron.FuncJob(func() { s.tick(ctx, taskDispatch) })),
		taskCleanup:  c.Schedule(csched, cron.FuncJob(func() { s.tick(ctx, taskCleanup) })),
	}
	s.c = c
	c.Start()
}

// Apply swaps schedules and zone. A running service re-registers its
// ticks; an invalid schedule leaves the current registration untouched.
func (s *Service) Apply(cfg Config) error {
	cfg, loc := normalize(cfg)
	dsched, err := compile(cfg.DispatchSchedule)
	if err != nil {
		return fmt.Errorf("dispatch schedule: %w", err)
	}
	csched, err := compile(cfg.CleanupSchedule)
	if err != nil {
		return fmt.Errorf("cleanup schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := cfg.DispatchSchedule != s.cfg.DispatchSchedule ||
		cfg.CleanupSchedule != s.cfg.CleanupSchedule ||
		loc.String() != s.loc.String()
	s.cfg, s.loc = cfg, loc
	if s.c == nil || !changed {
		return nil
	}
	old := s.c
	for _, id := range s.entries {
		old.Remove(id)
	}
	old.Stop()
	s.startCronLocked(dsched, csched)
	s.log.Info("schedules reloaded",
		logx.String("tz", loc.String()),
		logx.String("dispatch", cfg.DispatchSchedule),
		logx.String("cleanup", cfg.CleanupSchedule),
	)
	return nil
}

func compile(raw string) (cron.Schedule, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return nil, err
	}
	return ps.Schedule()
}

// Stop removes both ticks. A pass already in flight is not interrupted;
// Stop waits for it until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	s.mu.Lock()
	c := s.c
	entries := s.entries
	s.c = nil
	s.entries = nil
	s.mu.Unlock()

	if c == nil {
		s.log.Warn("stop ignored; not running")
		return
	}
	for _, id := range entries {
		c.Remove(id)
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop wait cut short; tick still running", logx.Err(ctx.Err()))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) Status() Status {
	s.mu.Lock()
	st := Status{Running: s.c != nil}
	if s.c != nil {
		st.TasksActive = len(s.c.Entries())
	}
	s.mu.Unlock()

	s.smu.Lock()
	st.LastDispatch = s.lastDispatch
	st.LastCleanup = s.lastCleanup
	st.LastReport = s.lastReport
	st.LastDeleted = s.lastDeleted
	s.smu.Unlock()
	return st
}

func (s *Service) tick(ctx context.Context, task string) {
	var err error
	switch task {
	case taskDispatch:
		_, err = s.RunDispatch(ctx)
	case taskCleanup:
		_, err = s.RunCleanup(ctx)
	}
	if errors.Is(err, ErrBusy) {
		s.log.Warn("tick skipped; previous run still in progress", logx.String("task", task))
		return
	}
	if err != nil {
		s.log.Error("tick failed", logx.String("task", task), logx.Err(err))
	}
}

// RunDispatch runs one dispatch pass now.
func (s *Service) RunDispatch(ctx context.Context) (dispatch.Report, error) {
	if !s.dispatching.CompareAndSwap(false, true) {
		return dispatch.Report{}, ErrBusy
	}
	defer s.dispatching.Store(false)
	if s.dispatcher == nil {
		return dispatch.Report{}, errors.New("dispatcher not configured")
	}

	now := s.now().In(s.Location())
	rep := s.dispatcher.Run(ctx, now)

	s.smu.Lock()
	s.lastDispatch = now
	s.lastReport = rep
	s.smu.Unlock()
	return rep, nil
}

// RunCleanup runs one retention sweep now.
func (s *Service) RunCleanup(ctx context.Context) (int, error) {
	if !s.cleaning.CompareAndSwap(false, true) {
		return 0, ErrBusy
	}
	defer s.cleaning.Store(false)
	if s.cleaner == nil {
		return 0, errors.New("cleaner not configured")
	}

	now := s.now().In(s.Location())
	n, err := s.cleaner.Run(ctx, now)

	s.smu.Lock()
	s.lastCleanup = now
	s.lastDeleted = n
	s.smu.Unlock()
	return n, err
}
