package policy

import (
	"fmt"
	"sort"
)

// Preset is a named bundle of session targets.
type Preset struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Websites []string `json:"websites,omitempty"`
	Apps     []string `json:"apps,omitempty"` // Process names, matched case-insensitively
}

// Registry holds the presets a session can be started from.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates a registry with the built-in presets.
func NewRegistry() *Registry {
	r := NewRegistryWithPresets()
	r.Register(Preset{
		ID:   "games",
		Name: "Games (Steam, Dota 2)",
		Websites: []string{
			"store.steampowered.com",
			"steamcommunity.com",
			"dota2.com",
		},
		Apps: []string{
			"steam",
			"steam_osx",
			"steamwebhelper",
			"steam.exe",
			"dota2",
			"dota2.exe",
			"dota_osx64",
		},
	})
	r.Register(Preset{
		ID:   "social",
		Name: "Social media",
		Websites: []string{
			"facebook.com", "www.facebook.com",
			"twitter.com", "x.com",
			"instagram.com", "www.instagram.com",
			"reddit.com", "www.reddit.com",
			"tiktok.com", "www.tiktok.com",
		},
	})
	r.Register(Preset{
		ID:   "video",
		Name: "Video streaming",
		Websites: []string{
			"youtube.com", "www.youtube.com",
			"netflix.com", "www.netflix.com",
			"twitch.tv", "www.twitch.tv",
		},
	})
	return r
}

// NewRegistryWithPresets creates a registry with custom presets (for testing).
func NewRegistryWithPresets(presets ...Preset) *Registry {
	r := &Registry{
		presets: make(map[string]Preset),
	}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a preset.
func (r *Registry) Register(p Preset) {
	r.presets[p.ID] = p
}

// Get returns a preset by ID.
func (r *Registry) Get(id string) (Preset, bool) {
	p, ok := r.presets[id]
	return p, ok
}

// GetAll returns all presets ordered by ID.
func (r *Registry) GetAll() []Preset {
	result := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Expand merges the targets of the given presets, in argument order.
func (r *Registry) Expand(ids ...string) (websites, apps []string, err error) {
	for _, id := range ids {
		p, ok := r.Get(id)
		if !ok {
			return nil, nil, fmt.Errorf("unknown preset: %s", id)
		}
		websites = append(websites, p.Websites...)
		apps = append(apps, p.Apps...)
	}
	return websites, apps, nil
}
