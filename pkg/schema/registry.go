package schema

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog collects definitions while loaders run. Later definitions replace
// earlier ones with the same name in the same version.
type Catalog struct {
	versions map[string]*versionCatalog
}

type versionCatalog struct {
	structures map[string]*StructureDef
	types      map[string]*TypeDef
	events     map[string]string // "ADT^A04" -> "ADT_A01"
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{versions: make(map[string]*versionCatalog)}
}

func (c *Catalog) version(v string) *versionCatalog {
	vc, ok := c.versions[v]
	if !ok {
		vc = &versionCatalog{
			structures: make(map[string]*StructureDef),
			types:      make(map[string]*TypeDef),
			events:     make(map[string]string),
		}
		c.versions[v] = vc
	}
	return vc
}

// AddStructure registers a message, group or segment definition.
func (c *Catalog) AddStructure(version string, def *StructureDef) {
	c.version(version).structures[def.Name] = def
}

// AddType registers a data type definition.
func (c *Catalog) AddType(version string, def *TypeDef) {
	c.version(version).types[def.Name] = def
}

// MapEvent maps messageType^event to a message structure.
func (c *Catalog) MapEvent(version, messageType, event, structure string) {
	c.version(version).events[eventKey(messageType, event)] = structure
}

// Loader populates a catalog.
type Loader func(*Catalog) error

// Registry is an in-memory Provider. Loaders run once, on first use, and the
// registry is read-only afterwards, so concurrent lookups need no locking.
type Registry struct {
	once    sync.Once
	loaders []Loader
	catalog *Catalog
	err     error
}

// NewRegistry creates a registry fed by the given loaders, applied in order.
func NewRegistry(loaders ...Loader) *Registry {
	return &Registry{loaders: loaders}
}

// Init runs the loaders. It is called implicitly by every lookup; calling it
// directly surfaces load errors early.
func (r *Registry) Init() error {
	r.once.Do(func() {
		c := NewCatalog()
		for i, load := range r.loaders {
			if err := load(c); err != nil {
				r.err = fmt.Errorf("schema loader %d: %w", i, err)
				return
			}
		}
		r.catalog = c
	})
	return r.err
}

func (r *Registry) lookup(version string) (*versionCatalog, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	vc, ok := r.catalog.versions[version]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return vc, nil
}

// ResolveStructure implements Provider.
func (r *Registry) ResolveStructure(version, name string) (*StructureDef, error) {
	vc, err := r.lookup(version)
	if err != nil {
		return nil, err
	}
	def, ok := vc.structures[name]
	if !ok {
		return nil, fmt.Errorf("%w: structure %s in version %s", ErrNotFound, name, version)
	}
	return def, nil
}

// ResolveType implements Provider.
func (r *Registry) ResolveType(typeName, version string) (*TypeDef, error) {
	vc, err := r.lookup(version)
	if err != nil {
		return nil, err
	}
	def, ok := vc.types[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: type %s in version %s", ErrNotFound, typeName, version)
	}
	return def, nil
}

// MessageStructure implements Provider.
func (r *Registry) MessageStructure(version, messageType, event string) (string, bool) {
	vc, err := r.lookup(version)
	if err != nil {
		return "", false
	}
	if s, ok := vc.events[eventKey(messageType, event)]; ok {
		return s, true
	}
	// ACK and friends are declared without an event.
	s, ok := vc.events[eventKey(messageType, "")]
	return s, ok
}

// Versions returns the loaded versions in sorted order.
func (r *Registry) Versions() []string {
	if r.Init() != nil {
		return nil
	}
	out := make([]string, 0, len(r.catalog.versions))
	for v := range r.catalog.versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// HasVersion reports whether any definition was loaded for version.
func (r *Registry) HasVersion(version string) bool {
	if r.Init() != nil {
		return false
	}
	_, ok := r.catalog.versions[version]
	return ok
}

// Count returns the number of structures and types loaded for version.
func (r *Registry) Count(version string) (structures, types int) {
	vc, err := r.lookup(version)
	if err != nil {
		return 0, 0
	}
	return len(vc.structures), len(vc.types)
}

func eventKey(messageType, event string) string {
	if event == "" {
		return messageType
	}
	return messageType + "^" + event
}
