package main

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/deepwork/internal/config"
	"github.com/eliteGoblin/focusd/deepwork/internal/daemon"
	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/infra"
	"github.com/eliteGoblin/focusd/deepwork/internal/policy"
	"github.com/eliteGoblin/focusd/deepwork/internal/usecase"
)

// app holds the wired components for one CLI invocation.
type app struct {
	cfg      *config.Config
	execMode *infra.ExecModeConfig
	logger   *zap.Logger

	processManager domain.ProcessManager
	hosts          domain.HostsStore
	engine         *usecase.Engine
	registry       domain.SessionRegistry
	backup         *infra.HostsBackup
	history        domain.SessionHistory // nil when disabled or unavailable
}

func newApp() (*app, error) {
	execMode := infra.DetectExecMode()

	path := configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path, execMode)
	if err != nil {
		return nil, err
	}

	logger := createLogger(cfg.LogPath, verbose)

	pm := infra.NewProcessManager()
	fs := infra.NewFileSystemManager()
	hosts := infra.NewHostsBlockStore(infra.HostsConfig{
		Path:            cfg.Hosts.Path,
		StartMarker:     cfg.Hosts.StartMarker,
		EndMarker:       cfg.Hosts.EndMarker,
		RedirectAddress: cfg.Hosts.RedirectAddress,
	}, fs, logger)

	var history domain.SessionHistory
	if cfg.History {
		h, err := infra.OpenHistory(cfg.DataDir)
		if err != nil {
			logger.Warn("session history unavailable", zap.Error(err))
		} else {
			history = h
		}
	}

	guard := usecase.NewProcessGuard(pm, usecase.GuardConfig{
		PollInterval: cfg.Guard.PollInterval,
		KillTimeout:  cfg.Guard.KillTimeout,
	}, logger)
	session := usecase.NewSessionController(usecase.ControllerConfig{
		TickInterval: usecase.DefaultTickInterval,
		PollInterval: cfg.Guard.PollInterval,
	}, hosts, guard, history, logger)

	return &app{
		cfg:            cfg,
		execMode:       execMode,
		logger:         logger,
		processManager: pm,
		hosts:          hosts,
		engine:         usecase.NewEngine(hosts, guard, session, pm, policy.DefaultProcessFilter(), logger),
		registry:       infra.NewFileRegistry(cfg.DataDir, pm),
		backup:         infra.NewHostsBackup(cfg.DataDir, fs, logger),
		history:        history,
	}, nil
}

func (a *app) newRunner() *daemon.Runner {
	return daemon.NewRunner(daemon.RunnerConfig{
		HeartbeatInterval: a.cfg.Session.HeartbeatInterval,
	}, a.engine, a.registry, a.processManager, a.logger)
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func createLogger(logPath string, verbose bool) *zap.Logger {
	if verbose {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}

	config := zap.NewProductionConfig()
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err == nil {
			config.OutputPaths = []string{logPath}
			config.ErrorOutputPaths = []string{logPath}
		}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// requireWritable warns early when the hosts file cannot be rewritten.
func (a *app) requireWritable() error {
	if infra.CanWrite(a.hosts.Path()) {
		return nil
	}
	return fmt.Errorf("cannot write %s in %s mode (try sudo)", a.hosts.Path(), a.execMode.Mode)
}
