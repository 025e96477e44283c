// Package ext implements late-bound field/method extension: any package
// can, at init() time, register additional fields onto a model it doesn't
// own by table name, the way the teacher's mixin packages compose
// behaviour onto a base schema without modifying it. A Selection field
// registered twice merges its options instead of conflicting, mirroring
// field.SelectionExtension / Descriptor.AddOptions.
package ext

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dotorm/dotorm/field"
)

// Conflict records a losing registration when two extensions declare the
// same field name on the same table without both being additive
// Selections. Last registration wins; the loser is kept here for
// diagnostics instead of silently discarded.
type Conflict struct {
	Table       string
	Field       string
	WinningFrom string
	LosingFrom  string
}

func (c Conflict) String() string {
	return fmt.Sprintf("ext: %s.%s: %s overrides %s", c.Table, c.Field, c.WinningFrom, c.LosingFrom)
}

type registration struct {
	descriptor *field.Descriptor
	source     string
}

// Registry accumulates field extensions keyed by table name until a model
// is constructed, at which point Apply merges them onto that model's base
// field list.
type Registry struct {
	mu        sync.Mutex
	byTable   map[string][]registration
	conflicts []Conflict
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byTable: make(map[string][]registration)}
}

// Register adds d as an extension field on table, attributed to source
// (typically the calling package's name) for conflict diagnostics.
// Registration order matters only for the conflict log; resolution always
// applies in registration order, so the most recently registered
// non-additive field wins.
func (r *Registry) Register(table, source string, d *field.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTable[table] = append(r.byTable[table], registration{descriptor: d, source: source})
}

// Apply merges every field registered for table onto base, returning the
// combined field list a field.Registry should be built from. Selection
// extensions (field.SelectionExtension) merge their options into an
// existing Selection field of the same name instead of replacing it,
// whether that field came from base or from an earlier extension. Any
// other same-name collision is resolved last-registration-wins, recorded
// as a Conflict.
func (r *Registry) Apply(table string, base []*field.Descriptor) []*field.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]*field.Descriptor, len(base))
	order := make([]string, 0, len(base))
	for _, f := range base {
		byName[f.Name] = f
		order = append(order, f.Name)
	}
	sourceOf := make(map[string]string, len(base))
	for _, name := range order {
		sourceOf[name] = table // base declarations attribute to the model itself
	}

	for _, reg := range r.byTable[table] {
		f := reg.descriptor
		existing, present := byName[f.Name]

		if f.IsSelectionAdd() {
			if present && existing.Kind == field.KindSelection {
				existing.AddOptions(f.Options)
				continue
			}
			// No base Selection to extend: register it as a new field so
			// the options aren't silently lost.
			byName[f.Name] = f
			if !present {
				order = append(order, f.Name)
			}
			sourceOf[f.Name] = reg.source
			continue
		}

		if present {
			r.conflicts = append(r.conflicts, Conflict{
				Table: table, Field: f.Name,
				WinningFrom: reg.source, LosingFrom: sourceOf[f.Name],
			})
		} else {
			order = append(order, f.Name)
		}
		byName[f.Name] = f
		sourceOf[f.Name] = reg.source
	}

	out := make([]*field.Descriptor, len(order))
	for i, name := range order {
		out[i] = byName[name]
	}
	return out
}

// Conflicts returns every recorded last-registration-wins collision,
// sorted by table then field for stable diagnostics output.
func (r *Registry) Conflicts() []Conflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conflict, len(r.conflicts))
	copy(out, r.conflicts)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Field < out[j].Field
	})
	return out
}

// Default is the process-wide registry extension packages register
// against via init(), mirroring how the teacher's generated schema
// resolves all mixins before a model is first used.
var Default = NewRegistry()
