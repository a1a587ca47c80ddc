// Package infra implements infrastructure concerns (hosts file, processes, storage).
package infra

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/multierr"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// Snapshot returns name and PID of every readable process.
func (pm *ProcessManagerImpl) Snapshot(ctx context.Context) ([]domain.ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make([]domain.ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if p.Pid <= 0 {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue // Process may have exited
		}
		snapshot = append(snapshot, domain.ProcessInfo{Name: name, PID: int(p.Pid)})
	}
	return snapshot, nil
}

// KillByName force-kills every process whose name equals name (case-insensitive).
// The current process is never killed.
func (pm *ProcessManagerImpl) KillByName(ctx context.Context, name string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	self := int32(os.Getpid())
	var killed []int
	var errs error
	matched := false

	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		pname, err := p.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(pname, name) {
			continue
		}
		matched = true

		if err := p.KillWithContext(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("pid %d: %w", p.Pid, err))
			continue
		}
		killed = append(killed, int(p.Pid))
	}

	if !matched {
		return nil, fmt.Errorf("no running process named %q", name)
	}
	return killed, errs
}

// IsRunning checks if a PID exists and is running.
func (pm *ProcessManagerImpl) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}

	// On Unix, FindProcess always succeeds
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Send signal 0 to check if process exists
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// GetCurrentPID returns the current process PID.
func (pm *ProcessManagerImpl) GetCurrentPID() int {
	return os.Getpid()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
