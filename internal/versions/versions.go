// Package versions holds the per game version color and faction tables.
package versions

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// DefaultKey names the table used when a version string has no entry.
const DefaultKey = "default"

// ObserverFaction is the faction value observers carry.
const ObserverFaction = -2

// Color is a player color.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// Faction is a playable side. Short is used in generated file names.
type Faction struct {
	Name  string `json:"name"`
	Short string `json:"short"`
}

// Table is the lookup for one game version.
type Table struct {
	Version  string          `json:"version"`
	Colors   map[int]Color   `json:"colors"`
	Factions map[int]Faction `json:"factions"`
}

// ColorCount is the number of selectable colors.
func (t *Table) ColorCount() int { return len(t.Colors) }

// FactionCount is the number of playable factions, observers excluded.
func (t *Table) FactionCount() int {
	n := len(t.Factions)
	if _, ok := t.Factions[ObserverFaction]; ok {
		n--
	}
	return n
}

// Color returns the color for an index, or an "Unknown" entry.
func (t *Table) Color(i int) Color {
	if c, ok := t.Colors[i]; ok {
		return c
	}
	return Color{Name: "Unknown"}
}

// Faction returns the faction for an index, or an "Unknown" entry.
func (t *Table) Faction(i int) Faction {
	if f, ok := t.Factions[i]; ok {
		return f
	}
	return Faction{Name: "Unknown", Short: "Unknown"}
}

// Default returns a fresh copy of the built-in table.
func Default() *Table {
	return &Table{
		Version: DefaultKey,
		Colors: map[int]Color{
			0: {"Gold", "#CC9900"},
			1: {"Red", "#C80000"},
			2: {"Blue", "#0066CC"},
			3: {"Green", "#008000"},
			4: {"Orange", "#FF6600"},
			5: {"Cyan", "#0096b4"},
			6: {"Purple", "#800080"},
			7: {"Pink", "#C83296"},
		},
		Factions: map[int]Faction{
			ObserverFaction: {"Observer", "obs"},
			0:               {"USA", "usa"},
			1:               {"China", "china"},
			2:               {"GLA", "gla"},
			3:               {"USA Superweapon", "sw"},
			4:               {"USA Laser", "laz"},
			5:               {"USA Airforce", "air"},
			6:               {"China Tank", "tank"},
			7:               {"China Infantry", "inf"},
			8:               {"China Nuke", "nuke"},
			9:               {"GLA Toxin", "tox"},
			10:              {"GLA Demolition", "demo"},
			11:              {"GLA Stealth", "stlth"},
		},
	}
}

// Registry maps header version strings to tables. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewRegistry returns a registry holding only the default table.
func NewRegistry() *Registry {
	return &Registry{tables: map[string]*Table{DefaultKey: Default()}}
}

// Register adds or replaces the table for t.Version. The observer faction
// is always present.
func (r *Registry) Register(t *Table) {
	if t.Factions == nil {
		t.Factions = make(map[int]Faction)
	}
	if _, ok := t.Factions[ObserverFaction]; !ok {
		t.Factions[ObserverFaction] = Faction{"Observer", "obs"}
	}
	r.mu.Lock()
	r.tables[t.Version] = t
	r.mu.Unlock()
}

// Lookup returns the table for a version string, falling back to default.
func (r *Registry) Lookup(version string) *Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tables[version]; ok {
		return t
	}
	return r.tables[DefaultKey]
}

// Versions lists registered version keys in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.tables))
	for k := range r.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadDir registers every *.json table found in dir.
func (r *Registry) LoadDir(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("reading version tables dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading %s: %w", entry.Name(), err)
		}

		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		if t.Version == "" {
			t.Version = strings.TrimSuffix(entry.Name(), ".json")
		}
		if len(t.Colors) == 0 {
			t.Colors = Default().Colors
		}
		if len(t.Factions) == 0 {
			t.Factions = Default().Factions
		}

		r.Register(&t)
	}

	return nil
}
