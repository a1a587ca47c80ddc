// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/policy"
)

const (
	// DefaultPollInterval is how often the process table is scanned.
	DefaultPollInterval = 5 * time.Second
	// DefaultKillTimeout bounds a single kill request.
	DefaultKillTimeout = 10 * time.Second
)

// activeGuard holds the guard currently enforcing, if any.
// Only one guard may poll the process table at a time.
var activeGuard atomic.Pointer[ProcessGuard]

// GuardConfig holds process guard settings.
type GuardConfig struct {
	PollInterval time.Duration // Used when Start gets a non-positive interval
	KillTimeout  time.Duration
}

// DefaultGuardConfig returns default guard configuration.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		PollInterval: DefaultPollInterval,
		KillTimeout:  DefaultKillTimeout,
	}
}

// ProcessGuard kills blocked applications whenever they show up in the
// process table.
type ProcessGuard struct {
	config         GuardConfig
	processManager domain.ProcessManager
	logger         *zap.Logger

	mu     sync.Mutex
	names  []string
	cancel context.CancelFunc
	done   chan struct{}

	// inflight counts kill requests still running. Stop waits for them,
	// bounded by KillTimeout.
	inflight sync.WaitGroup
}

// NewProcessGuard creates a stopped guard.
func NewProcessGuard(pm domain.ProcessManager, config GuardConfig, logger *zap.Logger) *ProcessGuard {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.KillTimeout <= 0 {
		config.KillTimeout = DefaultKillTimeout
	}
	return &ProcessGuard{
		config:         config,
		processManager: pm,
		logger:         logger,
	}
}

// Start begins enforcing names, replacing whatever this guard enforced before.
// The process table is checked immediately and then every pollInterval.
func (g *ProcessGuard) Start(names []string, pollInterval time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopLocked()

	names = policy.NormalizeApps(names)
	if len(names) == 0 {
		return fmt.Errorf("%w: no process names to block", domain.ErrInvalidInput)
	}
	if !activeGuard.CompareAndSwap(nil, g) {
		return domain.ErrGuardActive
	}
	if pollInterval <= 0 {
		pollInterval = g.config.PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.names = names
	g.cancel = cancel
	g.done = make(chan struct{})

	go g.loop(ctx, names, pollInterval, g.done)

	g.logger.Info("process guard started",
		zap.Strings("names", names),
		zap.Duration("poll_interval", pollInterval))
	return nil
}

// Stop cancels the poll loop and waits for it to exit, then gives kill
// requests already issued up to KillTimeout to finish.
func (g *ProcessGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopLocked() {
		g.logger.Info("process guard stopped")
	}
}

// Running reports whether the guard is enforcing.
func (g *ProcessGuard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancel != nil
}

// Names returns the process names being enforced.
func (g *ProcessGuard) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.names...)
}

func (g *ProcessGuard) stopLocked() bool {
	if g.cancel == nil {
		return false
	}

	g.cancel()
	<-g.done

	if !g.waitInflight(g.config.KillTimeout) {
		g.logger.Warn("kill requests still running after guard stop",
			zap.Duration("waited", g.config.KillTimeout))
	}

	g.cancel = nil
	g.done = nil
	g.names = nil
	activeGuard.CompareAndSwap(g, nil)
	return true
}

// waitInflight reports whether every issued kill returned within timeout.
// The poll loop must have exited so no new kill can be issued.
func (g *ProcessGuard) waitInflight(timeout time.Duration) bool {
	finished := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (g *ProcessGuard) loop(ctx context.Context, names []string, interval time.Duration, done chan struct{}) {
	defer close(done)

	g.enforce(ctx, names)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.enforce(ctx, names)
		}
	}
}

// enforce runs one poll. A panic is logged and the next tick proceeds.
func (g *ProcessGuard) enforce(ctx context.Context, names []string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("process guard tick panicked", zap.Any("panic", r))
		}
	}()

	snapshot, err := g.processManager.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		g.logger.Warn("skipping process check",
			zap.Error(&domain.ProcessListError{Err: err}))
		return
	}

	running := make(map[string]bool, len(snapshot))
	for _, p := range snapshot {
		running[strings.ToLower(p.Name)] = true
	}

	for _, name := range names {
		if !running[strings.ToLower(name)] {
			continue
		}
		g.inflight.Add(1)
		go g.terminate(name)
	}
}

func (g *ProcessGuard) terminate(name string) {
	defer g.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), g.config.KillTimeout)
	defer cancel()

	pids, err := g.processManager.KillByName(ctx, name)
	if err != nil {
		g.logger.Warn("failed to kill blocked app",
			zap.Error(&domain.TerminationError{Name: name, Err: err}))
		return
	}
	g.logger.Info("killed blocked app",
		zap.String("name", name),
		zap.Ints("pids", pids))
}

