package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

const registryFileName = "session.json"

// FileRegistry implements domain.SessionRegistry using a JSON file.
// It only marks a running session process; sessions are never resumed from it.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry inside dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) domain.SessionRegistry {
	return &FileRegistry{
		path:           filepath.Join(dataDir, registryFileName),
		processManager: pm,
	}
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) domain.SessionRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// GetRegistryPath returns the registry file path.
func (r *FileRegistry) GetRegistryPath() string {
	return r.path
}

// Register records the running session. A live session owned by another
// process is rejected with domain.ErrSessionActive.
func (r *FileRegistry) Register(entry domain.RegistryEntry) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	// Use file lock to prevent two CLI invocations registering at once
	lockPath := r.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	existing, _ := r.Get()
	if existing != nil && existing.PID != entry.PID && r.processManager.IsRunning(existing.PID) {
		return fmt.Errorf("%w (pid %d)", domain.ErrSessionActive, existing.PID)
	}

	entry.Version = 1
	entry.LastHeartbeat = time.Now().Unix()
	if entry.Mode == "" {
		if os.Geteuid() == 0 {
			entry.Mode = "system"
		} else {
			entry.Mode = "user"
		}
	}

	return r.atomicWrite(&entry)
}

// Get returns the registered entry, or nil when the file does not exist.
func (r *FileRegistry) Get() (*domain.RegistryEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.RegistryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// UpdateHeartbeat updates timestamp for liveness check.
func (r *FileRegistry) UpdateHeartbeat() error {
	entry, err := r.Get()
	if err != nil {
		return err
	}
	if entry == nil {
		return domain.ErrNotRunning
	}

	entry.LastHeartbeat = time.Now().Unix()
	return r.atomicWrite(entry)
}

// IsAlive checks if the registered session process is running via PID.
func (r *FileRegistry) IsAlive() (bool, error) {
	entry, err := r.Get()
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}
	return r.processManager.IsRunning(entry.PID), nil
}

// Clear removes the registry file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *FileRegistry) atomicWrite(entry *domain.RegistryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return writeFileAtomic(r.path, data, 0600)
}

// Ensure FileRegistry implements domain.SessionRegistry.
var _ domain.SessionRegistry = (*FileRegistry)(nil)
