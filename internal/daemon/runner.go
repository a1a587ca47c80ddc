// Package daemon runs a focus session in the foreground of the CLI process.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/usecase"
)

// RunnerConfig holds runner configuration.
type RunnerConfig struct {
	HeartbeatInterval time.Duration // How often the registry heartbeat is refreshed
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Runner drives one session to completion.
// It marks the session in the registry so that other invocations can find
// it, and tears the session down when the context is canceled.
type Runner struct {
	config         RunnerConfig
	engine         *usecase.Engine
	registry       domain.SessionRegistry
	processManager domain.ProcessManager
	logger         *zap.Logger

	// OnHeartbeat, if set, is called with the session after each heartbeat.
	OnHeartbeat func(domain.Session)
}

// NewRunner creates a new session runner.
func NewRunner(
	config RunnerConfig,
	engine *usecase.Engine,
	registry domain.SessionRegistry,
	pm domain.ProcessManager,
	logger *zap.Logger,
) *Runner {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultRunnerConfig().HeartbeatInterval
	}
	return &Runner{
		config:         config,
		engine:         engine,
		registry:       registry,
		processManager: pm,
		logger:         logger,
	}
}

// Run starts a session and blocks until it expires, is stopped, or ctx is
// canceled. Cancellation ends the session as a manual stop.
//
// The registry is claimed before the hosts file is touched. Register holds
// the registry lock, so of two concurrent runs exactly one gets the claim and
// the other leaves the winner's block alone.
func (r *Runner) Run(ctx context.Context, req usecase.StartRequest) error {
	self := r.processManager.GetCurrentPID()

	claim := domain.RegistryEntry{
		PID:       self,
		StartedAt: time.Now(),
		EndsAt:    time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute),
		Websites:  req.Websites,
		Apps:      req.Apps,
	}
	if err := r.registry.Register(claim); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	defer r.clearRegistry()

	if res := r.engine.StartSession(ctx, req.Websites, req.Apps, req.DurationMinutes); !res.Success {
		return res.Err()
	}

	s := r.engine.SessionStatus()
	entry := domain.RegistryEntry{
		PID:       self,
		SessionID: s.ID,
		StartedAt: s.StartedAt,
		EndsAt:    s.StartedAt.Add(time.Duration(s.DurationSeconds) * time.Second),
		Websites:  s.Websites,
		Apps:      s.Apps,
	}
	// Same PID as the claim, so this only fills in the session details.
	if err := r.registry.Register(entry); err != nil {
		r.logger.Warn("failed to record session details", zap.Error(err))
	}

	r.logger.Info("session runner started",
		zap.Int("pid", self),
		zap.String("session", s.ID),
		zap.String("registry", r.registry.GetRegistryPath()))

	done := r.engine.Session().Done()
	heartbeatTicker := time.NewTicker(r.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("session runner interrupted")
			return r.engine.StopSession(context.Background()).Err()

		case <-done:
			r.logger.Info("session finished", zap.String("session", s.ID))
			return nil

		case <-heartbeatTicker.C:
			if err := r.registry.UpdateHeartbeat(); err != nil {
				r.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
			if r.OnHeartbeat != nil {
				r.OnHeartbeat(r.engine.SessionStatus())
			}
		}
	}
}

// GuardApps kills the named apps until ctx is canceled, without a timer and
// without touching the hosts file.
func (r *Runner) GuardApps(ctx context.Context, names []string) error {
	if res := r.engine.StartAppBlocking(names); !res.Success {
		return res.Err()
	}
	r.logger.Info("app guard running", zap.Strings("apps", names))

	<-ctx.Done()
	return r.engine.StopAppBlocking().Err()
}

func (r *Runner) clearRegistry() {
	if err := r.registry.Clear(); err != nil {
		r.logger.Warn("failed to clear session registry", zap.Error(err))
	}
}

// EnsureIdle returns domain.ErrSessionActive when a live process owns a
// session. Commands that rewrite the hosts block call it first.
func EnsureIdle(registry domain.SessionRegistry) error {
	entry, err := registry.Get()
	if err != nil {
		return fmt.Errorf("read session registry: %w", err)
	}
	if entry == nil {
		return nil
	}
	alive, err := registry.IsAlive()
	if err != nil {
		return err
	}
	if alive {
		return fmt.Errorf("%w (pid %d): use 'deepwork stop' to end it", domain.ErrSessionActive, entry.PID)
	}
	return nil
}

// RecoverStale removes a website block left behind by a session process
// that died without tearing down, and journals that session as aborted when
// history is non-nil. It reports whether anything was recovered.
// A live session is left alone.
func RecoverStale(
	hosts domain.HostsStore,
	registry domain.SessionRegistry,
	history domain.SessionHistory,
	logger *zap.Logger,
) (bool, error) {
	entry, err := registry.Get()
	if err != nil {
		return false, fmt.Errorf("read session registry: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	alive, err := registry.IsAlive()
	if err != nil {
		return false, err
	}
	if alive {
		return false, nil
	}

	logger.Info("recovering from dead session process",
		zap.Int("pid", entry.PID),
		zap.String("session", entry.SessionID))

	if len(entry.Websites) > 0 {
		if err := hosts.Unblock(); err != nil {
			return false, err
		}
	}

	if history != nil && entry.SessionID != "" {
		if err := history.RecordEnd(abortedRecord(entry)); err != nil {
			logger.Warn("failed to journal aborted session", zap.Error(err))
		}
	}

	if err := registry.Clear(); err != nil {
		return true, fmt.Errorf("clear session registry: %w", err)
	}
	return true, nil
}

// abortedRecord ends a dead session at its last heartbeat, the latest
// moment it was known to be enforcing.
func abortedRecord(entry *domain.RegistryEntry) domain.SessionRecord {
	ended := time.Now()
	if entry.LastHeartbeat > 0 {
		ended = time.Unix(entry.LastHeartbeat, 0)
	}
	return domain.SessionRecord{
		ID:             entry.SessionID,
		StartedAt:      entry.StartedAt,
		EndedAt:        ended,
		PlannedSeconds: int(entry.EndsAt.Sub(entry.StartedAt).Seconds()),
		Reason:         domain.ReasonAborted,
		Websites:       entry.Websites,
		Apps:           entry.Apps,
	}
}
