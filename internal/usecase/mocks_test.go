package usecase

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	mu          sync.Mutex
	snapshot    []domain.ProcessInfo
	snapshotErr error
	panicOnce   bool
	snapshots   int
	killErr     error
	killed      []string

	// killGate, when set, holds every KillByName until it is closed or
	// the request's context ends.
	killGate chan struct{}
}

func (m *mockProcessManager) Snapshot(ctx context.Context) ([]domain.ProcessInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots++
	if m.panicOnce {
		m.panicOnce = false
		panic("process table exploded")
	}
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return append([]domain.ProcessInfo(nil), m.snapshot...), nil
}

func (m *mockProcessManager) KillByName(ctx context.Context, name string) ([]int, error) {
	if m.killGate != nil {
		select {
		case <-m.killGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.killed = append(m.killed, name)
	if m.killErr != nil {
		return nil, m.killErr
	}

	var pids []int
	for _, p := range m.snapshot {
		if strings.EqualFold(p.Name, name) {
			pids = append(pids, p.PID)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return false
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

func (m *mockProcessManager) killedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.killed...)
}

// mockHostsStore implements domain.HostsStore for testing
type mockHostsStore struct {
	mu           sync.Mutex
	blocked      []string
	blockErr     error
	unblockErr   error
	blockCalls   [][]string
	unblockCalls int
}

func (m *mockHostsStore) Block(domains []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blockCalls = append(m.blockCalls, domains)
	if m.blockErr != nil {
		return m.blockErr
	}
	if len(domains) > 0 {
		m.blocked = append([]string(nil), domains...)
	}
	return nil
}

func (m *mockHostsStore) Unblock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.unblockCalls++
	if m.unblockErr != nil {
		return m.unblockErr
	}
	m.blocked = nil
	return nil
}

func (m *mockHostsStore) ListBlocked() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.blocked...)
}

func (m *mockHostsStore) Path() string {
	return "/tmp/hosts"
}

func (m *mockHostsStore) unblocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unblockCalls
}

// mockHistory implements domain.SessionHistory for testing
type mockHistory struct {
	mu      sync.Mutex
	started []domain.Session
	ended   []domain.SessionRecord
}

func (m *mockHistory) RecordStart(session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, session)
	return nil
}

func (m *mockHistory) RecordEnd(record domain.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = append(m.ended, record)
	return nil
}

func (m *mockHistory) List(limit int) ([]domain.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionRecord(nil), m.ended...), nil
}

func (m *mockHistory) Close() error {
	return nil
}

func (m *mockHistory) endings() []domain.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SessionRecord(nil), m.ended...)
}

var errBoom = errors.New("boom")

// stopGuardOnCleanup releases the process-wide guard slot after a test.
func stopGuardOnCleanup(t *testing.T, g *ProcessGuard) {
	t.Helper()
	t.Cleanup(g.Stop)
}

