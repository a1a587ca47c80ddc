package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/policy"
)

// Result is the outcome of an engine command.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	err error
}

// ResultOf converts an error into a Result.
func ResultOf(err error) Result {
	if err != nil {
		return Result{Success: false, Error: err.Error(), err: err}
	}
	return Result{Success: true}
}

// Err returns the underlying error, nil on success. Sentinels such as
// domain.ErrSessionActive survive for errors.Is.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	if r.err != nil {
		return r.err
	}
	return errors.New(r.Error)
}

// Engine is the command and query surface used by the CLI.
// Commands never return errors; failures are reported in Result.
type Engine struct {
	hosts          domain.HostsStore
	guard          *ProcessGuard
	session        *SessionController
	processManager domain.ProcessManager
	filter         *policy.ProcessFilter
	logger         *zap.Logger
}

// NewEngine wires an engine. The session controller must share hosts and guard.
func NewEngine(
	hosts domain.HostsStore,
	guard *ProcessGuard,
	session *SessionController,
	pm domain.ProcessManager,
	filter *policy.ProcessFilter,
	logger *zap.Logger,
) *Engine {
	if filter == nil {
		filter = policy.DefaultProcessFilter()
	}
	return &Engine{
		hosts:          hosts,
		guard:          guard,
		session:        session,
		processManager: pm,
		filter:         filter,
		logger:         logger,
	}
}

// BlockWebsites installs the website block outside of a session.
func (e *Engine) BlockWebsites(domains []string) Result {
	err := e.hosts.Block(policy.NormalizeWebsites(domains))
	if err != nil {
		e.logger.Warn("block websites failed", zap.Error(err))
	}
	return ResultOf(err)
}

// UnblockWebsites removes the website block.
func (e *Engine) UnblockWebsites() Result {
	err := e.hosts.Unblock()
	if err != nil {
		e.logger.Warn("unblock websites failed", zap.Error(err))
	}
	return ResultOf(err)
}

// GetBlockedWebsites lists the domains currently redirected.
func (e *Engine) GetBlockedWebsites() []string {
	return e.hosts.ListBlocked()
}

// StartAppBlocking starts the process guard with the default poll interval.
func (e *Engine) StartAppBlocking(names []string) Result {
	err := e.guard.Start(names, 0)
	if err != nil {
		e.logger.Warn("start app blocking failed", zap.Error(err))
	}
	return ResultOf(err)
}

// StopAppBlocking stops the process guard. Stopping an idle guard succeeds.
func (e *Engine) StopAppBlocking() Result {
	e.guard.Stop()
	return ResultOf(nil)
}

// GetRunningProcesses returns user-facing process names, sorted and
// de-duplicated. A failed listing yields an empty slice.
func (e *Engine) GetRunningProcesses(ctx context.Context) []string {
	snapshot, err := e.processManager.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("list processes failed",
			zap.Error(&domain.ProcessListError{Err: err}))
		return []string{}
	}
	return e.filter.Apply(snapshot)
}

// StartSession activates a focus session.
func (e *Engine) StartSession(ctx context.Context, websites, apps []string, minutes int) Result {
	err := e.session.Start(ctx, StartRequest{
		Websites:        websites,
		Apps:            apps,
		DurationMinutes: minutes,
	})
	if err != nil {
		e.logger.Warn("start session failed", zap.Error(err))
	}
	return ResultOf(err)
}

// StopSession ends the active session, if any.
func (e *Engine) StopSession(ctx context.Context) Result {
	err := e.session.Stop(ctx)
	if err != nil {
		e.logger.Warn("stop session failed", zap.Error(err))
	}
	return ResultOf(err)
}

// SessionStatus returns the current session.
func (e *Engine) SessionStatus() domain.Session {
	return e.session.Status()
}

// Session exposes the controller, for runners that wait on Done.
func (e *Engine) Session() *SessionController {
	return e.session
}
