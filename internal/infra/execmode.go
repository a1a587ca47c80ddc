package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the privilege level the CLI runs with.
type ExecMode string

const (
	// ExecModeUser runs without root; the hosts file is usually read-only.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root and can rewrite the hosts file.
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths and settings based on execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Registry, history database and key
	LogPath string
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:    ExecModeSystem,
			DataDir: "/var/lib/deepwork",
			LogPath: "/var/log/deepwork.log",
			IsRoot:  true,
		}
	}

	home := GetRealUserHome()
	dataDir := filepath.Join(home, ".deepwork")
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, "deepwork.log"),
		IsRoot:  false,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// CanWrite reports whether path can be opened for writing by this process.
// Used to warn before a session fails on a protected hosts file.
func CanWrite(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
