package scene

import (
	"fmt"
	"os"

	"github.com/l1jgo/coreloop/internal/core/tick"
	"gopkg.in/yaml.v3"
)

// PhaseOverride replaces a script's defaults for one phase. Nil fields keep
// the script's value.
type PhaseOverride struct {
	Order      *int  `yaml:"order"`
	Eligible   *bool `yaml:"eligible"`
	AutoManage *bool `yaml:"auto_manage"`
}

// Apply writes the override onto settings that are already valid.
func (o *PhaseOverride) Apply(s *tick.Settings) {
	if o == nil || !s.Valid() {
		return
	}
	if o.Order != nil {
		s.Order = *o.Order
	}
	if o.Eligible != nil {
		s.Eligible = *o.Eligible
	}
	if o.AutoManage != nil {
		s.AutoManage = *o.AutoManage
	}
}

// Entry spawns Count instances of one script.
type Entry struct {
	Name        string         `yaml:"name"`
	Script      string         `yaml:"script"`
	Count       int            `yaml:"count"`
	FixedUpdate *PhaseOverride `yaml:"fixed_update"`
	Update      *PhaseOverride `yaml:"update"`
	LateUpdate  *PhaseOverride `yaml:"late_update"`
}

// Override returns the entry's override for phase, or nil.
func (e *Entry) Override(phase tick.Phase) *PhaseOverride {
	switch phase {
	case tick.PhaseFixedUpdate:
		return e.FixedUpdate
	case tick.PhaseUpdate:
		return e.Update
	case tick.PhaseLateUpdate:
		return e.LateUpdate
	}
	return nil
}

// Scene is the list of task instances a host spawns at startup.
type Scene struct {
	Entries []Entry
}

// LoadScene loads a scene yaml file.
func LoadScene(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	var entries []Entry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Script == "" {
			return nil, fmt.Errorf("scene entry %d: script is required", i)
		}
		if e.Name == "" {
			e.Name = e.Script
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("scene entry %d: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
		if e.Count == 0 {
			e.Count = 1
		}
		if e.Count < 0 {
			return nil, fmt.Errorf("scene entry %q: negative count %d", e.Name, e.Count)
		}
	}
	return &Scene{Entries: entries}, nil
}

// Count returns the total number of task instances in the scene.
func (s *Scene) Count() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Count
	}
	return n
}

// ForScript returns the entries that spawn script.
func (s *Scene) ForScript(script string) []*Entry {
	var out []*Entry
	for i := range s.Entries {
		if s.Entries[i].Script == script {
			out = append(out, &s.Entries[i])
		}
	}
	return out
}
