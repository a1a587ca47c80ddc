package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/policy"
)

// DefaultTickInterval is one countdown step; each step removes one second.
const DefaultTickInterval = time.Second

// ControllerConfig holds session controller settings.
type ControllerConfig struct {
	TickInterval time.Duration
	PollInterval time.Duration // Passed to the process guard
}

// DefaultControllerConfig returns default controller configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval: DefaultTickInterval,
		PollInterval: DefaultPollInterval,
	}
}

// StartRequest describes a session to activate.
type StartRequest struct {
	Websites        []string
	Apps            []string
	DurationMinutes int
}

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// SessionController owns the single focus session: it installs the website
// block, runs the process guard and counts the session down.
type SessionController struct {
	config  ControllerConfig
	hosts   domain.HostsStore
	guard   *ProcessGuard
	history domain.SessionHistory // Optional
	logger  *zap.Logger

	mu      sync.Mutex
	session domain.Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSessionController creates an idle controller. history may be nil.
func NewSessionController(
	config ControllerConfig,
	hosts domain.HostsStore,
	guard *ProcessGuard,
	history domain.SessionHistory,
	logger *zap.Logger,
) *SessionController {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	return &SessionController{
		config:  config,
		hosts:   hosts,
		guard:   guard,
		history: history,
		logger:  logger,
		session: domain.Session{Status: domain.StatusIdle},
	}
}

// Start activates a session. Websites are blocked before the guard starts;
// if the guard cannot start the block is removed again and the controller
// stays idle.
func (c *SessionController) Start(ctx context.Context, req StartRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	websites := policy.NormalizeWebsites(req.Websites)
	apps := policy.NormalizeApps(req.Apps)
	if len(websites) == 0 && len(apps) == 0 {
		return fmt.Errorf("%w: no websites or apps to block", domain.ErrInvalidInput)
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive, got %d minutes", domain.ErrInvalidInput, req.DurationMinutes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.IsActive() {
		return domain.ErrSessionActive
	}

	if len(websites) > 0 {
		if err := c.hosts.Block(websites); err != nil {
			return fmt.Errorf("block websites: %w", err)
		}
	}

	if len(apps) > 0 {
		if err := c.guard.Start(apps, c.config.PollInterval); err != nil {
			err = fmt.Errorf("start app blocking: %w", err)
			if len(websites) > 0 {
				if uerr := c.hosts.Unblock(); uerr != nil {
					err = multierr.Append(err, fmt.Errorf("roll back website block: %w", uerr))
				}
			}
			c.logger.Warn("session activation rolled back", zap.Error(err))
			return err
		}
	}

	seconds := req.DurationMinutes * 60
	c.session = domain.Session{
		ID:               uuid.NewString(),
		Status:           domain.StatusActive,
		Websites:         websites,
		Apps:             apps,
		DurationSeconds:  seconds,
		RemainingSeconds: seconds,
		StartedAt:        time.Now(),
	}

	countdownCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.countdown(countdownCtx, c.session.ID)

	c.logger.Info("session started",
		zap.String("session", c.session.ID),
		zap.Strings("websites", websites),
		zap.Strings("apps", apps),
		zap.Int("minutes", req.DurationMinutes))

	if c.history != nil {
		if err := c.history.RecordStart(c.snapshotLocked()); err != nil {
			c.logger.Warn("failed to record session start", zap.Error(err))
		}
	}
	return nil
}

// Stop ends the active session. Stopping an idle controller is a no-op.
func (c *SessionController) Stop(ctx context.Context) error {
	return c.StopWithReason(ctx, domain.ReasonManual)
}

// StopWithReason ends the active session, journaling reason.
// Both the website block and the guard are torn down even if one fails;
// the controller is idle afterwards in every case.
func (c *SessionController) StopWithReason(_ context.Context, reason domain.StopReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.IsActive() {
		return nil
	}
	return c.stopLocked(reason)
}

// Status returns a copy of the current session.
func (c *SessionController) Status() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Done returns a channel closed when the current session ends.
// When idle the returned channel is already closed.
func (c *SessionController) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.IsActive() || c.done == nil {
		return closedDone
	}
	return c.done
}

func (c *SessionController) countdown(ctx context.Context, id string) {
	ticker := time.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.tick(id) {
				return
			}
		}
	}
}

// tick removes one second from session id and stops it at zero.
// It reports whether the countdown for id is over.
func (c *SessionController) tick(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.session.IsActive() || c.session.ID != id {
		return true
	}

	c.session.RemainingSeconds--
	if c.session.RemainingSeconds > 0 {
		return false
	}

	c.logger.Info("session time is up", zap.String("session", id))
	if err := c.stopLocked(domain.ReasonExpired); err != nil {
		c.logger.Error("session teardown incomplete", zap.Error(err))
	}
	return true
}

func (c *SessionController) stopLocked(reason domain.StopReason) error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	var errs error
	if err := c.hosts.Unblock(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("unblock websites: %w", err))
	}
	c.guard.Stop()

	ended := c.session
	c.session = domain.Session{Status: domain.StatusIdle}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}

	c.logger.Info("session stopped",
		zap.String("session", ended.ID),
		zap.String("reason", string(reason)),
		zap.Int("remaining_seconds", ended.RemainingSeconds))

	if c.history != nil {
		record := domain.SessionRecord{
			ID:             ended.ID,
			StartedAt:      ended.StartedAt,
			EndedAt:        time.Now(),
			PlannedSeconds: ended.DurationSeconds,
			Reason:         reason,
			Websites:       ended.Websites,
			Apps:           ended.Apps,
		}
		if errs != nil {
			record.TeardownError = errs.Error()
		}
		if err := c.history.RecordEnd(record); err != nil {
			c.logger.Warn("failed to record session end", zap.Error(err))
		}
	}
	return errs
}

func (c *SessionController) snapshotLocked() domain.Session {
	s := c.session
	s.Websites = append([]string(nil), s.Websites...)
	s.Apps = append([]string(nil), s.Apps...)
	return s
}
