package infra

import (
	"context"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// mockProcessManager is a test double for ProcessManager
type mockProcessManager struct {
	runningPIDs map[int]bool
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		runningPIDs: make(map[int]bool),
	}
}

func (m *mockProcessManager) Snapshot(ctx context.Context) ([]domain.ProcessInfo, error) {
	return nil, nil
}

func (m *mockProcessManager) KillByName(ctx context.Context, name string) ([]int, error) {
	return nil, nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	return m.runningPIDs[pid]
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) SetRunning(pid int, running bool) {
	m.runningPIDs[pid] = running
}

// memFileSystem is an in-memory domain.FileSystemManager.
type memFileSystem struct {
	mu       sync.Mutex
	files    map[string][]byte
	readErr  error
	writeErr error
	writes   int
}

func newMemFileSystem() *memFileSystem {
	return &memFileSystem{files: make(map[string][]byte)}
}

func (m *memFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	data, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *memFileSystem) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *memFileSystem) Stat(path string) (os.FileInfo, error) {
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

func (m *memFileSystem) ExpandHome(path string) string {
	return path
}

func (m *memFileSystem) content(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.files[path])
}

func (m *memFileSystem) set(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = []byte(content)
}

func sampleEntry(pid int) domain.RegistryEntry {
	start := time.Now().Truncate(time.Second)
	return domain.RegistryEntry{
		PID:       pid,
		SessionID: "session-1",
		StartedAt: start,
		EndsAt:    start.Add(25 * time.Minute),
		Websites:  []string{"x.com"},
		Apps:      []string{"steam"},
	}
}

var (
	_ domain.ProcessManager    = (*mockProcessManager)(nil)
	_ domain.FileSystemManager = (*memFileSystem)(nil)
)
