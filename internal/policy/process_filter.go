package policy

import (
	"sort"
	"strings"

	"github.com/eliteGoblin/focusd/deepwork/internal/domain"
)

// systemProcesses are never offered as blocking candidates.
var systemProcesses = []string{
	// Windows
	"explorer.exe", "taskhost.exe", "winlogon.exe", "csrss.exe",
	"dwm.exe", "lsass.exe", "services.exe", "svchost.exe",
	"smss.exe", "wininit.exe", "system", "registry",
	// Unix
	"launchd", "kernel_task", "systemd", "init", "kthreadd",
	"loginwindow", "windowserver",
}

// systemSubstrings exclude background helpers by name fragment.
var systemSubstrings = []string{"service", "host"}

// ProcessFilter hides system and background processes from a snapshot.
type ProcessFilter struct {
	names      map[string]bool
	substrings []string
}

// DefaultProcessFilter returns the filter with the built-in exclusion lists.
func DefaultProcessFilter() *ProcessFilter {
	return NewProcessFilter(systemProcesses, systemSubstrings)
}

// NewProcessFilter builds a filter from exact names and name fragments.
// Both are matched case-insensitively.
func NewProcessFilter(names, substrings []string) *ProcessFilter {
	f := &ProcessFilter{names: make(map[string]bool, len(names))}
	for _, n := range names {
		f.names[strings.ToLower(n)] = true
	}
	for _, s := range substrings {
		f.substrings = append(f.substrings, strings.ToLower(s))
	}
	return f
}

// Allows reports whether a process name may be shown to the user.
func (f *ProcessFilter) Allows(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" || f.names[lower] {
		return false
	}
	for _, s := range f.substrings {
		if strings.Contains(lower, s) {
			return false
		}
	}
	return true
}

// Apply returns the distinct allowed names of a snapshot, sorted
// case-insensitively.
func (f *ProcessFilter) Apply(snapshot []domain.ProcessInfo) []string {
	seen := make(map[string]bool)
	result := make([]string, 0)

	for _, p := range snapshot {
		if p.PID <= 0 || !f.Allows(p.Name) || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		result = append(result, p.Name)
	}

	sort.Slice(result, func(i, j int) bool {
		return strings.ToLower(result[i]) < strings.ToLower(result[j])
	})
	return result
}
