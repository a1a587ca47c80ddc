package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

const (
	backupFileName     = "hosts.backup"
	backupMetaFileName = "hosts.backup.json"
)

// BackupInfo describes the saved copy of the hosts file.
type BackupInfo struct {
	HostsPath string    `json:"hosts_path"`
	SHA256    string    `json:"sha256"`
	Size      int       `json:"size"`
	TakenAt   time.Time `json:"taken_at"`
}

// HostsBackup keeps a copy of the hosts file taken before a session edits
// it, so the file can be put back by hand if something goes wrong.
type HostsBackup struct {
	dir    string
	fs     domain.FileSystemManager
	logger *zap.Logger
}

// NewHostsBackup creates a backup store inside dataDir.
func NewHostsBackup(dataDir string, fs domain.FileSystemManager, logger *zap.Logger) *HostsBackup {
	return &HostsBackup{
		dir:    dataDir,
		fs:     fs,
		logger: logger,
	}
}

// Snapshot copies hostsPath into the backup, replacing any previous copy.
func (b *HostsBackup) Snapshot(hostsPath string) (*BackupInfo, error) {
	data, err := b.fs.ReadFile(hostsPath)
	if err != nil {
		return nil, &domain.FileAccessError{Op: "read", Path: hostsPath, Err: err}
	}

	if err := os.MkdirAll(b.dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := writeFileAtomic(b.backupPath(), data, 0600); err != nil {
		return nil, fmt.Errorf("write hosts backup: %w", err)
	}

	info := &BackupInfo{
		HostsPath: hostsPath,
		SHA256:    sha256Hex(data),
		Size:      len(data),
		TakenAt:   time.Now(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(b.metaPath(), meta, 0600); err != nil {
		return nil, fmt.Errorf("write hosts backup info: %w", err)
	}

	b.logger.Debug("hosts file backed up",
		zap.String("hosts", hostsPath),
		zap.String("sha256", info.SHA256))
	return info, nil
}

// Info returns the saved backup description, or nil when there is none.
func (b *HostsBackup) Info() (*BackupInfo, error) {
	data, err := os.ReadFile(b.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode hosts backup info: %w", err)
	}
	return &info, nil
}

// Restore writes the backup over the hosts file it was taken from.
// A backup whose checksum no longer matches is refused.
func (b *HostsBackup) Restore() (*BackupInfo, error) {
	info, err := b.Info()
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("no hosts backup in %s", b.dir)
	}

	data, err := os.ReadFile(b.backupPath())
	if err != nil {
		return nil, fmt.Errorf("read hosts backup: %w", err)
	}
	if sum := sha256Hex(data); sum != info.SHA256 {
		return nil, fmt.Errorf("hosts backup is corrupted (sha256 %s, expected %s)", sum, info.SHA256)
	}

	if err := b.fs.WriteFile(info.HostsPath, data); err != nil {
		return nil, &domain.FileAccessError{Op: "write", Path: info.HostsPath, Err: err}
	}

	b.logger.Info("hosts file restored from backup",
		zap.String("hosts", info.HostsPath),
		zap.Time("taken_at", info.TakenAt))
	return info, nil
}

func (b *HostsBackup) backupPath() string {
	return filepath.Join(b.dir, backupFileName)
}

func (b *HostsBackup) metaPath() string {
	return filepath.Join(b.dir, backupMetaFileName)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic writes to a temp file in the same directory, syncs,
// then renames over dst.
func writeFileAtomic(dst string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".deepwork-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return err
	}

	success = true
	return nil
}
