// Package config loads deepwork settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/infra"
)

const configFileName = "config.yaml"

// Config holds all deepwork configuration.
type Config struct {
	Hosts   HostsConfig
	Guard   GuardConfig
	Session SessionConfig
	DataDir string // Registry, history database and key
	LogPath string
	History bool // Journal sessions to the encrypted history database
}

// HostsConfig locates the hosts file and names the block markers.
type HostsConfig struct {
	Path            string
	StartMarker     string
	EndMarker       string
	RedirectAddress string
}

// GuardConfig controls the process guard.
type GuardConfig struct {
	PollInterval time.Duration
	KillTimeout  time.Duration
}

// SessionConfig controls the registry heartbeat. The countdown always
// steps once per second and is not configurable.
type SessionConfig struct {
	HeartbeatInterval time.Duration
}

type yamlConfig struct {
	Hosts struct {
		Path            string `yaml:"path"`
		StartMarker     string `yaml:"start_marker"`
		EndMarker       string `yaml:"end_marker"`
		RedirectAddress string `yaml:"redirect_address"`
	} `yaml:"hosts"`
	Guard struct {
		PollInterval string `yaml:"poll_interval"`
		KillTimeout  string `yaml:"kill_timeout"`
	} `yaml:"guard"`
	Session struct {
		HeartbeatInterval string `yaml:"heartbeat_interval"`
	} `yaml:"session"`
	DataDir string `yaml:"data_dir"`
	LogPath string `yaml:"log_path"`
	History *bool  `yaml:"history"`
}

// DefaultHostsPath returns the hosts file location for the running OS.
func DefaultHostsPath() string {
	if runtime.GOOS == "windows" {
		return `C:\Windows\System32\drivers\etc\hosts`
	}
	return "/etc/hosts"
}

// Default returns the built-in configuration for the given execution mode.
func Default(mode *infra.ExecModeConfig) *Config {
	return &Config{
		Hosts: HostsConfig{
			Path:            DefaultHostsPath(),
			StartMarker:     infra.DefaultStartMarker,
			EndMarker:       infra.DefaultEndMarker,
			RedirectAddress: domain.DefaultRedirectAddress,
		},
		Guard: GuardConfig{
			PollInterval: 5 * time.Second,
			KillTimeout:  10 * time.Second,
		},
		Session: SessionConfig{
			HeartbeatInterval: 30 * time.Second,
		},
		DataDir: mode.DataDir,
		LogPath: mode.LogPath,
		History: true,
	}
}

// DefaultPath returns the config file location inside the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(configDir, "deepwork", configFileName), nil
}

// Load reads configuration from path, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string, mode *infra.ExecModeConfig) (*Config, error) {
	cfg := Default(mode)

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Hosts.Path) == "" {
		return errors.New("hosts path cannot be empty")
	}
	if strings.TrimSpace(c.Hosts.StartMarker) == "" || strings.TrimSpace(c.Hosts.EndMarker) == "" {
		return errors.New("hosts markers cannot be empty")
	}
	if strings.TrimSpace(c.Hosts.StartMarker) == strings.TrimSpace(c.Hosts.EndMarker) {
		return errors.New("hosts start and end markers must differ")
	}
	if strings.ContainsAny(c.Hosts.RedirectAddress, " \t#") || c.Hosts.RedirectAddress == "" {
		return fmt.Errorf("invalid redirect address %q", c.Hosts.RedirectAddress)
	}
	if c.Guard.PollInterval <= 0 {
		return errors.New("guard poll interval must be > 0")
	}
	if c.Guard.KillTimeout <= 0 {
		return errors.New("guard kill timeout must be > 0")
	}
	if c.Session.HeartbeatInterval <= 0 {
		return errors.New("session heartbeat interval must be > 0")
	}
	if c.DataDir == "" {
		return errors.New("data dir cannot be empty")
	}
	return nil
}

func (c *Config) applyFile(path string) error {
	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	var fileData yamlConfig
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	setString(&c.Hosts.Path, fileData.Hosts.Path)
	setString(&c.Hosts.StartMarker, fileData.Hosts.StartMarker)
	setString(&c.Hosts.EndMarker, fileData.Hosts.EndMarker)
	setString(&c.Hosts.RedirectAddress, fileData.Hosts.RedirectAddress)
	setString(&c.DataDir, fileData.DataDir)
	setString(&c.LogPath, fileData.LogPath)
	if fileData.History != nil {
		c.History = *fileData.History
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"guard.poll_interval", fileData.Guard.PollInterval, &c.Guard.PollInterval},
		{"guard.kill_timeout", fileData.Guard.KillTimeout, &c.Guard.KillTimeout},
		{"session.heartbeat_interval", fileData.Session.HeartbeatInterval, &c.Session.HeartbeatInterval},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Hosts.Path, os.Getenv("DEEPWORK_HOSTS_PATH"))
	setString(&c.DataDir, os.Getenv("DEEPWORK_DATA_DIR"))
	setString(&c.LogPath, os.Getenv("DEEPWORK_LOG_PATH"))

	if err := envDuration("DEEPWORK_POLL_INTERVAL", &c.Guard.PollInterval); err != nil {
		return err
	}
	if err := envDuration("DEEPWORK_KILL_TIMEOUT", &c.Guard.KillTimeout); err != nil {
		return err
	}

	if value, ok := os.LookupEnv("DEEPWORK_HISTORY"); ok {
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("parse DEEPWORK_HISTORY: %w", err)
		}
		c.History = enabled
	}
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
