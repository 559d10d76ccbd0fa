// Package scheduler runs sync passes on an interval and after local changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Trigger names what started a pass
type Trigger string

const (
	TriggerInterval    Trigger = "interval"
	TriggerLocalChange Trigger = "local_change"
	TriggerManual      Trigger = "manual"
)

// RunFunc executes one sync pass
type RunFunc func(ctx context.Context, trigger Trigger) error

// Config configures a Scheduler
type Config struct {
	// Interval between passes, 0 disables the timer
	Interval time.Duration

	// WatchDir is the local snapshot directory, empty disables watching
	WatchDir string
	// Debounce is how long local changes must settle before a pass
	Debounce time.Duration
	// Cooldown ignores local events right after a pass, which wrote them itself.
	// Negative disables it.
	Cooldown time.Duration
	// Ignore reports names whose changes never trigger a pass
	Ignore func(name string) bool

	// RunOnStart runs one pass as soon as Run starts
	RunOnStart bool
}

const (
	defaultDebounce = 3 * time.Second
	defaultCooldown = 5 * time.Second
)

// Scheduler serializes passes. Triggers arriving while a pass runs are
// coalesced into at most one follow-up pass.
type Scheduler struct {
	cfg    Config
	run    RunFunc
	logger *zap.Logger

	pending chan Trigger

	mu       sync.Mutex
	running  bool
	active   bool
	cooldown time.Time
	lastRun  time.Time
	lastErr  error
	passes   int
}

// New creates a scheduler calling run for every pass
func New(cfg Config, run RunFunc, logger *zap.Logger) (*Scheduler, error) {
	if run == nil {
		return nil, fmt.Errorf("run function is required")
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative: %v", cfg.Interval)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	} else if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:     cfg,
		run:     run,
		logger:  logger.Named("scheduler"),
		pending: make(chan Trigger, 1),
	}, nil
}

// Run blocks until ctx is cancelled, executing passes as they are triggered
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.cfg.WatchDir != "" {
		w, err := newWatcher(s.cfg.WatchDir, s.cfg.Debounce, s.cfg.Ignore, s.onLocalChange, s.logger)
		if err != nil {
			return err
		}
		defer w.close()
		go w.loop(ctx)
	}

	var tick <-chan time.Time
	if s.cfg.Interval > 0 {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.String("watch_dir", s.cfg.WatchDir),
	)

	if s.cfg.RunOnStart {
		s.Trigger(TriggerManual)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", zap.Int("passes", s.Passes()))
			return nil
		case <-tick:
			s.Trigger(TriggerInterval)
		case trigger := <-s.pending:
			s.execute(ctx, trigger)
		}
	}
}

// Trigger requests a pass. It never blocks; a request made while another
// is already queued is dropped.
func (s *Scheduler) Trigger(trigger Trigger) {
	select {
	case s.pending <- trigger:
		s.logger.Debug("Pass queued", zap.String("trigger", string(trigger)))
	default:
		s.logger.Debug("Pass already queued", zap.String("trigger", string(trigger)))
	}
}

func (s *Scheduler) execute(ctx context.Context, trigger Trigger) {
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	s.logger.Info("Executing scheduled sync", zap.String("trigger", string(trigger)))
	err := s.run(ctx, trigger)
	if err != nil {
		s.logger.Warn("Scheduled sync failed",
			zap.String("trigger", string(trigger)),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	s.active = false
	s.cooldown = time.Now().Add(s.cfg.Cooldown)
	s.lastRun = time.Now()
	s.lastErr = err
	s.passes++
	s.mu.Unlock()
}

func (s *Scheduler) onLocalChange() {
	s.mu.Lock()
	ignore := s.active || time.Now().Before(s.cooldown)
	s.mu.Unlock()

	if ignore {
		s.logger.Debug("Local change ignored (sync active or cooldown)")
		return
	}
	s.logger.Info("Local changes detected, triggering sync")
	s.Trigger(TriggerLocalChange)
}

// Passes returns the number of passes executed
func (s *Scheduler) Passes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// LastRun returns when the last pass finished and its error
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// IsRunning reports whether Run is active
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
