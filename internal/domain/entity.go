// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// DefaultRedirectAddress is the loopback address blocked domains resolve to.
const DefaultRedirectAddress = "127.0.0.1"

// SessionStatus is the state of the session state machine.
type SessionStatus string

const (
	StatusIdle   SessionStatus = "idle"
	StatusActive SessionStatus = "active"
)

// StopReason records why a session ended.
type StopReason string

const (
	ReasonExpired StopReason = "expired" // Countdown reached zero
	ReasonManual  StopReason = "manual"  // Stop called by the user
	ReasonAborted StopReason = "aborted" // Session process died without tearing down
)

// Session is the single focus session owned by the session controller.
type Session struct {
	ID               string
	Status           SessionStatus
	Websites         []string
	Apps             []string
	DurationSeconds  int
	RemainingSeconds int
	StartedAt        time.Time
}

// IsActive reports whether the session is currently enforcing.
func (s Session) IsActive() bool {
	return s.Status == StatusActive
}

// Progress returns the elapsed fraction of the session in [0, 1].
func (s Session) Progress() float64 {
	if s.DurationSeconds <= 0 {
		return 0
	}
	elapsed := s.DurationSeconds - s.RemainingSeconds
	if elapsed < 0 {
		return 0
	}
	return float64(elapsed) / float64(s.DurationSeconds)
}

// FormatRemaining renders the remaining time as m:ss.
func (s Session) FormatRemaining() string {
	remaining := s.RemainingSeconds
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%d:%02d", remaining/60, remaining%60)
}

// ProcessInfo is one entry of a process table snapshot.
type ProcessInfo struct {
	Name string
	PID  int
}

// SessionRecord is a finished session as kept in the history journal.
type SessionRecord struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        time.Time  `json:"ended_at"`
	PlannedSeconds int        `json:"planned_seconds"`
	Reason         StopReason `json:"reason"`
	Websites       []string   `json:"websites"`
	Apps           []string   `json:"apps"`
	TeardownError  string     `json:"teardown_error,omitempty"` // Empty when teardown fully succeeded
}

// RegistryEntry marks the process currently running a session.
// Persisted to a JSON file so other CLI invocations can find it.
type RegistryEntry struct {
	Version       int       `json:"version"`
	PID           int       `json:"pid"`
	SessionID     string    `json:"session_id"`
	StartedAt     time.Time `json:"started_at"`
	EndsAt        time.Time `json:"ends_at"`
	Websites      []string  `json:"websites,omitempty"`
	Apps          []string  `json:"apps,omitempty"`
	LastHeartbeat int64     `json:"last_heartbeat"`
	Mode          string    `json:"mode,omitempty"` // "user" or "system"
}
