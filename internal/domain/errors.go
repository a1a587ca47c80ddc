package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when a session or guard request is malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSessionActive is returned when starting a session while one is active.
	ErrSessionActive = errors.New("session already active")

	// ErrGuardActive is returned when a second process guard tries to start
	// while another one is enforcing.
	ErrGuardActive = errors.New("another process guard is already active")

	// ErrNotRunning is returned when no session process is registered.
	ErrNotRunning = errors.New("no session is running")
)

// FileAccessError wraps a failed hosts-file read or write.
// Typically a missing file or a permission problem (needs root).
type FileAccessError struct {
	Op   string // "read" or "write"
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// ParseError reports a hosts file whose block markers do not pair up.
type ParseError struct {
	Path   string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Reason)
}

// ProcessListError reports a failed process table enumeration.
type ProcessListError struct {
	Err error
}

func (e *ProcessListError) Error() string {
	return fmt.Sprintf("list processes: %v", e.Err)
}

func (e *ProcessListError) Unwrap() error {
	return e.Err
}

// TerminationError reports a failed kill for one process name.
type TerminationError struct {
	Name string
	Err  error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("terminate %s: %v", e.Name, e.Err)
}

func (e *TerminationError) Unwrap() error {
	return e.Err
}
