package fixtures

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

// FakeApp is a long-running process with a chosen executable name,
// used as a stand-in for a distracting application.
type FakeApp struct {
	Name string
	cmd  *exec.Cmd
}

// StartFakeApp copies the sleep binary to dir/name and runs it.
// Keep name under 15 characters: Linux truncates process names.
func StartFakeApp(dir, name string) (*FakeApp, error) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		return nil, fmt.Errorf("sleep binary not found: %w", err)
	}

	binary := filepath.Join(dir, name)
	if err := copyExecutable(sleepPath, binary); err != nil {
		return nil, err
	}

	cmd := exec.Command(binary, "300")
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	app := &FakeApp{Name: name, cmd: cmd}
	go func() { _ = cmd.Wait() }() // Reap once killed
	return app, nil
}

// PID returns the process ID.
func (a *FakeApp) PID() int {
	return a.cmd.Process.Pid
}

// Alive reports whether the process still exists.
func (a *FakeApp) Alive() bool {
	return a.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// Kill stops the process if it is still running.
func (a *FakeApp) Kill() {
	_ = a.cmd.Process.Kill()
}

func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
