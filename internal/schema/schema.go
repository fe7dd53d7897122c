// Package schema holds the per-entity metadata the command engine is
// driven by. The engine never hardcodes field names; everything routes
// through a Descriptor looked up here by EntityKey.
package schema

import (
	"sort"
	"strconv"
	"strings"
)

// ActingContext identifies the principal a verb call runs as.
// Zero values mean unauthenticated / no active team.
type ActingContext struct {
	UserID int64
	TeamID int64
}

func (a ActingContext) Authenticated() bool { return a.UserID > 0 }

// Choice is one disambiguation candidate offered back to the caller.
// ID is an int64 for row candidates and a string for entity keys.
type Choice struct {
	ID    any    `json:"id"`
	Label string `json:"label"`
}

// VisibilityFunc narrows a query to rows the acting user may see.
// It returns a SQL fragment (no leading AND) plus its bind args.
type VisibilityFunc func(actor ActingContext) (clause string, args []any)

// Reference declares that a writable field holds a foreign key which
// callers may supply as a human-readable label instead of an id.
type Reference struct {
	Field    string `yaml:"field"`
	Entity   string `yaml:"entity"`
	AltLabel string `yaml:"alt_label"` // second column to match, e.g. users.email
}

// Descriptor is the registry-held metadata for one entity.
type Descriptor struct {
	Key          string
	Table        string      `yaml:"table"`
	LabelField   string      `yaml:"label_field"`
	TenantColumn string      `yaml:"tenant_column"` // "" = not tenant scoped
	OwnerColumn  string      `yaml:"owner_column"`  // set on create from the acting user
	SoftDelete   bool        `yaml:"soft_delete"`   // deleted_at column present
	ShowRoute    string      `yaml:"show_route"`    // e.g. "/projects/{project}"
	RouteParam   string      `yaml:"route_param"`
	Selectable   []string    `yaml:"selectable"`
	Writable     []string    `yaml:"writable"`
	Required     []string    `yaml:"required"`
	Sortable     []string    `yaml:"sortable"`
	Filterable   []string    `yaml:"filterable"`
	References   []Reference `yaml:"references"`
	// ResolveOnly marks an entity that exists purely as a reference
	// target (users, for assignee coercion). The verbs treat it as
	// unregistered; only the foreign key resolver may read it.
	ResolveOnly bool `yaml:"resolve_only"`

	Visibility VisibilityFunc `yaml:"-"`
}

// HasField reports whether name is selectable on this entity.
func (d *Descriptor) HasField(name string) bool {
	return contains(d.Selectable, name) || name == "id"
}

// SearchField returns the column free-text search runs against:
// whichever of title/name exists in the selectable set, first match wins.
func (d *Descriptor) SearchField() string {
	for _, f := range []string{"title", "name"} {
		if contains(d.Selectable, f) {
			return f
		}
	}
	return ""
}

// NavigateURL builds the show URL for a row id. ok is false when the
// entity carries no navigation metadata.
func (d *Descriptor) NavigateURL(id int64) (string, bool) {
	if d.ShowRoute == "" || d.RouteParam == "" {
		return "", false
	}
	return strings.Replace(d.ShowRoute, "{"+d.RouteParam+"}", formatID(id), 1), true
}

// Registry maps EntityKey to its Descriptor. Populated once at startup.
type Registry struct {
	entities map[string]*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Descriptor)}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d *Descriptor) {
	r.entities[d.Key] = d
}

// Describe looks up the descriptor for an entity key.
func (r *Registry) Describe(key string) (*Descriptor, bool) {
	d, ok := r.entities[key]
	return d, ok
}

// KeysUnderNamespace lists registered entity keys with the given prefix,
// sorted for stable disambiguation output.
func (r *Registry) KeysUnderNamespace(prefix string) []string {
	var keys []string
	for k := range r.entities {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// SetVisibility installs a row-level visibility rule for one entity.
func (r *Registry) SetVisibility(key string, fn VisibilityFunc) {
	if d, ok := r.entities[key]; ok {
		d.Visibility = fn
	}
}

// ValidateSortField returns candidate if it is sortable, else fallback.
func (r *Registry) ValidateSortField(key, candidate, fallback string) string {
	d, ok := r.entities[key]
	if !ok || candidate == "" || !contains(d.Sortable, candidate) {
		return fallback
	}
	return candidate
}

// ValidateFieldList intersects candidates with the selectable set.
// An empty candidate list yields "id" plus every selectable field.
func (r *Registry) ValidateFieldList(key string, candidates []string) []string {
	d, ok := r.entities[key]
	if !ok {
		return nil
	}
	if len(candidates) == 0 {
		return append([]string{"id"}, d.Selectable...)
	}
	out := []string{}
	seen := map[string]bool{}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		if c == "id" || contains(d.Selectable, c) {
			out = append(out, c)
			seen[c] = true
		}
	}
	if len(out) == 0 {
		return append([]string{"id"}, d.Selectable...)
	}
	return out
}

// ValidateFilterMap drops unknown filter keys and null/empty values.
func (r *Registry) ValidateFilterMap(key string, candidates map[string]any) map[string]any {
	d, ok := r.entities[key]
	out := map[string]any{}
	if !ok {
		return out
	}
	for k, v := range candidates {
		if !contains(d.Filterable, k) {
			continue
		}
		if v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// RequiredFields returns the schema-required field names for an entity.
func (r *Registry) RequiredFields(key string) []string {
	if d, ok := r.entities[key]; ok {
		return d.Required
	}
	return nil
}

// WritableFields returns the mass-assignment allow list for an entity.
func (r *Registry) WritableFields(key string) []string {
	if d, ok := r.entities[key]; ok {
		return d.Writable
	}
	return nil
}

func contains(set []string, name string) bool {
	for _, s := range set {
		if s == name {
			return true
		}
	}
	return false
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
