// Package policy turns user input into session targets and decides which
// running processes are worth offering as blocking candidates.
package policy

import (
	"strings"
)

// ParseList splits comma-separated values, trims them and drops empties.
// Each argument may itself hold several values ("a.com, b.com").
func ParseList(values ...string) []string {
	var result []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
	}
	return result
}

// NormalizeWebsites lowercases domains, strips a scheme or path a user may
// have pasted, and removes duplicates keeping first-seen order.
func NormalizeWebsites(websites []string) []string {
	seen := make(map[string]bool, len(websites))
	result := make([]string, 0, len(websites))

	for _, w := range websites {
		w = strings.ToLower(strings.TrimSpace(w))
		w = strings.TrimPrefix(w, "http://")
		w = strings.TrimPrefix(w, "https://")
		if i := strings.IndexAny(w, "/?#"); i >= 0 {
			w = w[:i]
		}
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		result = append(result, w)
	}
	return result
}

// NormalizeApps removes duplicate process names case-insensitively,
// keeping the spelling first given.
func NormalizeApps(apps []string) []string {
	seen := make(map[string]bool, len(apps))
	result := make([]string, 0, len(apps))

	for _, a := range apps {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, a)
	}
	return result
}
