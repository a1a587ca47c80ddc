// Package main is the CLI entry point for deepwork.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/deepwork/internal/daemon"
	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
	"github.com/eliteGoblin/focusd/deepwork/internal/infra"
	"github.com/eliteGoblin/focusd/deepwork/internal/policy"
	"github.com/eliteGoblin/focusd/deepwork/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "deepwork",
	Short: "Focus sessions - blocks distracting websites and apps",
	Long: `deepwork runs timed focus sessions. While a session is active it
redirects the listed websites to 127.0.0.1 through the hosts file and
kills the listed applications whenever they start. Everything is
reverted when the timer runs out.

Blocking websites needs write access to the hosts file (usually root).`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env file is normal
		_ = godotenv.Load()
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session in the foreground",
	Long: `Blocks the given websites and apps for --minutes, then unblocks them.
The session runs in this process: Ctrl-C or 'deepwork stop' ends it early.

Sites and apps may be repeated or comma-separated:
  deepwork start --site youtube.com,reddit.com --app steam --minutes 50
  deepwork start --preset games --preset social`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running session",
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session",
	RunE:  runStatus,
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Kill apps until interrupted, without a timer or website block",
	Long: `Keeps killing the given apps until Ctrl-C. Nothing is written to the
hosts file, so this works without root:
  deepwork guard --app steam,discord`,
	RunE: runGuard,
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Block websites without a timer (until 'deepwork unblock')",
	RunE:  runBlock,
}

var unblockCmd = &cobra.Command{
	Use:   "unblock",
	Short: "Remove the website block",
	Long: `Removes the deepwork block from the hosts file. Also cleans up after a
session whose process died before it could unblock. A live session must
be ended with 'deepwork stop' instead.

--restore puts back the copy of the hosts file saved when the last
session started, for when the file was damaged by hand or by another tool.`,
	RunE: runUnblock,
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List websites currently blocked",
	RunE:  runBlocked,
}

var processesCmd = &cobra.Command{
	Use:   "processes",
	Short: "List running applications that can be blocked",
	RunE:  runProcesses,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past sessions",
	RunE:  runHistory,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List built-in presets",
	RunE:  runPresets,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	configPath    string
	verbose       bool
	jsonOutput    bool
	sites         []string
	apps          []string
	presets       []string
	minutes       int
	historyLimit  int
	restoreBackup bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config dir/deepwork/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Machine-readable output")

	startCmd.Flags().StringSliceVarP(&sites, "site", "s", nil, "Website to block (repeatable, comma-separated)")
	startCmd.Flags().StringSliceVarP(&apps, "app", "a", nil, "Process name to kill (repeatable, comma-separated)")
	startCmd.Flags().StringSliceVarP(&presets, "preset", "p", nil, "Built-in preset to include (see 'deepwork presets')")
	startCmd.Flags().IntVarP(&minutes, "minutes", "m", 25, "Session length in minutes")

	guardCmd.Flags().StringSliceVarP(&apps, "app", "a", nil, "Process name to kill (repeatable, comma-separated)")
	guardCmd.Flags().StringSliceVarP(&presets, "preset", "p", nil, "Built-in preset whose apps to include")
	blockCmd.Flags().StringSliceVarP(&sites, "site", "s", nil, "Website to block (repeatable, comma-separated)")
	unblockCmd.Flags().BoolVar(&restoreBackup, "restore", false, "Put back the hosts file saved before the last session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of sessions to show")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
	rootCmd.AddCommand(blockedCmd)
	rootCmd.AddCommand(processesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	websites := policy.ParseList(sites...)
	targets := policy.ParseList(apps...)

	presetSites, presetApps, err := policy.NewRegistry().Expand(policy.ParseList(presets...)...)
	if err != nil {
		return err
	}
	websites = append(websites, presetSites...)
	targets = append(targets, presetApps...)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if recovered, err := daemon.RecoverStale(a.hosts, a.registry, a.history, a.logger); err != nil {
		return fmt.Errorf("clean up previous session: %w", err)
	} else if recovered && !jsonOutput {
		fmt.Println("Removed block left by a previous session that did not exit cleanly.")
	}

	if len(websites) > 0 {
		if err := a.requireWritable(); err != nil {
			return err
		}
		if _, err := a.backup.Snapshot(a.hosts.Path()); err != nil {
			a.logger.Warn("hosts backup failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := a.newRunner()
	if !jsonOutput {
		runner.OnHeartbeat = func(s domain.Session) {
			fmt.Printf("  %s remaining (%.0f%%)\n", s.FormatRemaining(), s.Progress()*100)
		}
	}

	req := usecase.StartRequest{Websites: websites, Apps: targets, DurationMinutes: minutes}
	started := time.Now()

	if !jsonOutput {
		fmt.Printf("Focus session: %d min\n", minutes)
		if w := policy.NormalizeWebsites(websites); len(w) > 0 {
			fmt.Printf("  Websites: %s\n", strings.Join(w, ", "))
		}
		if p := policy.NormalizeApps(targets); len(p) > 0 {
			fmt.Printf("  Apps:     %s\n", strings.Join(p, ", "))
		}
		fmt.Println("Press Ctrl-C to end early.")
	}

	err = runner.Run(ctx, req)
	if jsonOutput || err != nil {
		return report(err, "")
	}

	fmt.Printf("Session over after %s. Everything is unblocked.\n", time.Since(started).Round(time.Second))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.registry.Get()
	if err != nil {
		return err
	}
	if entry == nil {
		return report(nil, "No session is running.")
	}

	if !a.processManager.IsRunning(entry.PID) {
		_, err := daemon.RecoverStale(a.hosts, a.registry, a.history, a.logger)
		return report(err, "Session process was gone; cleaned up its block.")
	}

	proc, err := os.FindProcess(entry.PID)
	if err != nil {
		return report(err, "")
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return report(fmt.Errorf("signal session process %d: %w", entry.PID, err), "")
	}

	// The session process tears down and clears the registry itself
	deadline := time.Now().Add(a.cfg.Guard.KillTimeout)
	for time.Now().Before(deadline) {
		if !a.processManager.IsRunning(entry.PID) {
			return report(nil, "Session stopped.")
		}
		time.Sleep(100 * time.Millisecond)
	}
	return report(fmt.Errorf("session process %d did not exit within %s", entry.PID, a.cfg.Guard.KillTimeout), "")
}

type statusOutput struct {
	Running          bool     `json:"running"`
	PID              int      `json:"pid,omitempty"`
	SessionID        string   `json:"session_id,omitempty"`
	RemainingSeconds int      `json:"remaining_seconds,omitempty"`
	Websites         []string `json:"websites,omitempty"`
	Apps             []string `json:"apps,omitempty"`
	Blocked          []string `json:"blocked"`
	HostsPath        string   `json:"hosts_path"`
	HostsWritable    bool     `json:"hosts_writable"`
	Mode             string   `json:"mode"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := statusOutput{
		Blocked:       a.engine.GetBlockedWebsites(),
		HostsPath:     a.hosts.Path(),
		HostsWritable: infra.CanWrite(a.hosts.Path()),
		Mode:          string(a.execMode.Mode),
	}

	entry, err := a.registry.Get()
	if err != nil {
		return err
	}
	if entry != nil && a.processManager.IsRunning(entry.PID) {
		out.Running = true
		out.PID = entry.PID
		out.SessionID = entry.SessionID
		out.Websites = entry.Websites
		out.Apps = entry.Apps
		if remaining := time.Until(entry.EndsAt); remaining > 0 {
			out.RemainingSeconds = int(remaining.Seconds())
		}
	}

	if jsonOutput {
		return printJSON(out)
	}

	fmt.Println("\n=== deepwork Status ===")
	if !out.Running {
		fmt.Println("Status: IDLE")
		if entry != nil {
			fmt.Println("        A previous session died; run 'deepwork unblock' to clean up.")
		}
	} else {
		view := domain.Session{RemainingSeconds: out.RemainingSeconds}
		fmt.Printf("Status: ACTIVE (pid %d)\n", out.PID)
		fmt.Printf("Remaining: %s\n", view.FormatRemaining())
		if len(out.Apps) > 0 {
			fmt.Printf("Apps: %s\n", strings.Join(out.Apps, ", "))
		}
		if entry.LastHeartbeat > 0 {
			lastBeat := time.Unix(entry.LastHeartbeat, 0)
			fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
		}
	}

	fmt.Printf("\nExecution mode: %s\n", a.execMode.Mode)
	fmt.Printf("Hosts file: %s", out.HostsPath)
	if !out.HostsWritable {
		fmt.Print(" (read-only)")
	}
	fmt.Println()

	fmt.Println("\nBlocked websites:")
	if len(out.Blocked) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range out.Blocked {
		fmt.Printf("  - %s\n", d)
	}
	fmt.Println("=======================")
	return nil
}

func runGuard(cmd *cobra.Command, args []string) error {
	targets := policy.ParseList(append(apps, args...)...)
	_, presetApps, err := policy.NewRegistry().Expand(policy.ParseList(presets...)...)
	if err != nil {
		return err
	}
	targets = append(targets, presetApps...)

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOutput {
		if p := policy.NormalizeApps(targets); len(p) > 0 {
			fmt.Printf("Guarding against: %s\n", strings.Join(p, ", "))
			fmt.Println("Press Ctrl-C to stop.")
		}
	}
	return report(a.newRunner().GuardApps(ctx, targets), "App guard stopped.")
}

func runBlock(cmd *cobra.Command, args []string) error {
	websites := policy.ParseList(append(sites, args...)...)
	if len(websites) == 0 {
		return report(fmt.Errorf("%w: no websites given", domain.ErrInvalidInput), "")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Block replaces the block, which would wipe a running session's sites
	if err := daemon.EnsureIdle(a.registry); err != nil {
		return report(err, "")
	}

	return reportResult(a.engine.BlockWebsites(websites), "Websites blocked. Run 'deepwork unblock' to undo.")
}

func runUnblock(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := daemon.EnsureIdle(a.registry); err != nil {
		return report(err, "")
	}

	if restoreBackup {
		info, err := a.backup.Restore()
		if err != nil {
			return report(err, "")
		}
		_ = a.registry.Clear()
		return report(nil, fmt.Sprintf("Restored %s from backup taken %s.",
			info.HostsPath, info.TakenAt.Format("2006-01-02 15:04")))
	}

	if _, err := daemon.RecoverStale(a.hosts, a.registry, a.history, a.logger); err != nil {
		return report(err, "")
	}
	return reportResult(a.engine.UnblockWebsites(), "Websites unblocked.")
}

func runBlocked(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	blocked := a.engine.GetBlockedWebsites()
	if jsonOutput {
		return printJSON(blocked)
	}
	for _, d := range blocked {
		fmt.Println(d)
	}
	return nil
}

func runProcesses(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	names := a.engine.GetRunningProcesses(cmd.Context())
	if jsonOutput {
		return printJSON(names)
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.history == nil {
		return errors.New("session history is disabled")
	}

	records, err := a.history.List(historyLimit)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if jsonOutput {
		return printJSON(records)
	}

	fmt.Println("\n=== Session History ===")
	if len(records) == 0 {
		fmt.Println("(no sessions yet)")
	}
	for _, r := range records {
		actual := "running"
		if !r.EndedAt.IsZero() {
			actual = r.EndedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("\n%s  %s of %d min  [%s]\n",
			r.StartedAt.Format("2006-01-02 15:04"), actual, r.PlannedSeconds/60, r.Reason)
		if len(r.Websites) > 0 {
			fmt.Printf("  Websites: %s\n", strings.Join(r.Websites, ", "))
		}
		if len(r.Apps) > 0 {
			fmt.Printf("  Apps: %s\n", strings.Join(r.Apps, ", "))
		}
		if r.TeardownError != "" {
			fmt.Printf("  Teardown error: %s\n", r.TeardownError)
		}
	}
	fmt.Println("\n=======================")
	return nil
}

func runPresets(cmd *cobra.Command, args []string) error {
	all := policy.NewRegistry().GetAll()
	if jsonOutput {
		return printJSON(all)
	}

	fmt.Println("\n=== Presets ===")
	for _, p := range all {
		fmt.Printf("\n[%s] %s\n", p.ID, p.Name)
		if len(p.Websites) > 0 {
			fmt.Println("  Websites:")
			for _, w := range p.Websites {
				fmt.Printf("    - %s\n", w)
			}
		}
		if len(p.Apps) > 0 {
			fmt.Println("  Apps:")
			for _, app := range p.Apps {
				fmt.Printf("    - %s\n", app)
			}
		}
	}
	fmt.Println("\n===============")
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		_ = printJSON(map[string]string{
			"version":    Version,
			"commit":     Commit,
			"build_time": BuildTime,
		})
		return
	}
	fmt.Printf("deepwork %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
}

// report prints err (or msg on success) in the selected output format.
func report(err error, msg string) error {
	return reportResult(usecase.ResultOf(err), msg)
}

func reportResult(r usecase.Result, msg string) error {
	if jsonOutput {
		if err := printJSON(r); err != nil {
			return err
		}
	} else if r.Success && msg != "" {
		fmt.Println(msg)
	}
	return r.Err()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
