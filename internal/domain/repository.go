package domain

import (
	"context"
	"os"
)

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// Snapshot returns every process currently visible to this user.
	Snapshot(ctx context.Context) ([]ProcessInfo, error)

	// KillByName terminates every process whose name equals name
	// (case-insensitive). Returns the PIDs that were terminated.
	KillByName(ctx context.Context, name string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// FileSystemManager handles whole-file reads and in-place rewrites.
type FileSystemManager interface {
	// ReadFile returns the full content of path.
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces the content of path, keeping its permission bits.
	WriteFile(path string, data []byte) error

	// Stat returns file info for path.
	Stat(path string) (os.FileInfo, error)

	// ExpandHome expands ~ to the user's home directory.
	ExpandHome(path string) string
}

// HostsStore manages the engine's block of redirects in the hosts file.
type HostsStore interface {
	// Block installs one redirect line per domain, replacing any existing block.
	Block(domains []string) error

	// Unblock removes the block. No-op when there is none.
	Unblock() error

	// ListBlocked returns the domains inside the block, in file order.
	ListBlocked() []string

	// Path returns the hosts file location.
	Path() string
}

// SessionRegistry tracks which OS process is running a session.
// Implementation: JSON file guarded by flock.
type SessionRegistry interface {
	// Register records the running session.
	Register(entry RegistryEntry) error

	// Get returns the registered entry, or nil when none exists.
	Get() (*RegistryEntry, error)

	// UpdateHeartbeat refreshes the liveness timestamp.
	UpdateHeartbeat() error

	// IsAlive reports whether the registered session process still runs.
	IsAlive() (bool, error)

	// Clear removes the registry file.
	Clear() error

	// GetRegistryPath returns the registry file path (for tests).
	GetRegistryPath() string
}

// SessionHistory is the journal of finished sessions.
type SessionHistory interface {
	// RecordStart journals a newly activated session.
	RecordStart(session Session) error

	// RecordEnd completes the journal entry of a session.
	RecordEnd(record SessionRecord) error

	// List returns the most recent records, newest first.
	List(limit int) ([]SessionRecord, error)

	// Close releases resources (e.g., database connection).
	Close() error
}

// KeyProvider abstracts the source of encryption keys.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
