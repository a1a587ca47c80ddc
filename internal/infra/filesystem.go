package infra

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// FileSystemManagerImpl implements domain.FileSystemManager.
type FileSystemManagerImpl struct {
	homeDir string
}

// NewFileSystemManager creates a new filesystem manager.
func NewFileSystemManager() domain.FileSystemManager {
	home, _ := os.UserHomeDir()
	return &FileSystemManagerImpl{homeDir: home}
}

// NewFileSystemManagerWithHome creates a filesystem manager with custom home (for testing).
func NewFileSystemManagerWithHome(home string) domain.FileSystemManager {
	return &FileSystemManagerImpl{homeDir: home}
}

// ReadFile returns the full content of path.
func (fm *FileSystemManagerImpl) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(fm.ExpandHome(path))
}

// WriteFile truncates and rewrites path in place.
// The file is not replaced via rename: hosts files are often bind-mounted
// (containers) or carry ACLs, and a rename would break both.
func (fm *FileSystemManagerImpl) WriteFile(path string, data []byte) error {
	expanded := fm.ExpandHome(path)

	perm := os.FileMode(0644)
	if info, err := os.Stat(expanded); err == nil {
		perm = info.Mode().Perm()
	}

	f, err := os.OpenFile(expanded, os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Stat returns file info for path.
func (fm *FileSystemManagerImpl) Stat(path string) (os.FileInfo, error) {
	return os.Stat(fm.ExpandHome(path))
}

// ExpandHome expands ~ to the user's home directory.
func (fm *FileSystemManagerImpl) ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(fm.homeDir, path[2:])
	}
	if path == "~" {
		return fm.homeDir
	}
	return path
}

// Ensure FileSystemManagerImpl implements domain.FileSystemManager.
var _ domain.FileSystemManager = (*FileSystemManagerImpl)(nil)
