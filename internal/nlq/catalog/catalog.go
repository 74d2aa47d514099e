// Package catalog holds the intent catalog: the mapping from intent names to
// the grid operation each one runs.
package catalog

import (
	"fmt"
	"sort"

	"wapi-nlq/internal/models"
	"wapi-nlq/pkg/registry"
)

const (
	SourceDefault = "default"
	SourceFile    = "file"
	SourceLive    = "live"
)

// Catalog is immutable once built. Refreshes build a new Catalog and swap it in.
type Catalog struct {
	source  string
	intents map[string]models.OperationSpec
	names   []string
}

// New validates every operation and copies the map so callers cannot mutate it later.
func New(source string, intents map[string]models.OperationSpec) (*Catalog, error) {
	if len(intents) == 0 {
		return nil, fmt.Errorf("catalog %s has no intents", source)
	}

	c := &Catalog{
		source:  source,
		intents: make(map[string]models.OperationSpec, len(intents)),
		names:   make([]string, 0, len(intents)),
	}
	for name, spec := range intents {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("intent %s: %w", name, err)
		}
		c.intents[name] = cloneSpec(spec)
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c, nil
}

// Default returns the built-in catalog used when no discovery has happened.
func Default() *Catalog {
	c, err := New(SourceDefault, map[string]models.OperationSpec{
		"create_network": {
			Method:         "POST",
			Endpoint:       "network",
			Fields:         []string{"network", "comment"},
			RequiredFields: []string{"network"},
		},
		"find_network": {
			Method:           "GET",
			Endpoint:         "network",
			SearchableFields: []string{"network", "comment"},
		},
		"update_network": {
			Method:   "PUT",
			Endpoint: "network/{ref}",
			Fields:   []string{"comment", "extattrs"},
		},
		"delete_network": {
			Method:   "DELETE",
			Endpoint: "network/{ref}",
		},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup resolves an intent. The returned spec is a copy.
func (c *Catalog) Lookup(intent string) (models.OperationSpec, bool) {
	spec, ok := c.intents[intent]
	if !ok {
		return models.OperationSpec{}, false
	}
	return cloneSpec(spec), true
}

func (c *Catalog) Has(intent string) bool {
	_, ok := c.intents[intent]
	return ok
}

// Intents lists intent names in sorted order.
func (c *Catalog) Intents() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Source() string { return c.source }

func (c *Catalog) Len() int { return len(c.intents) }

// FromRegistry converts an on-disk registry into a catalog.
func FromRegistry(reg *registry.IntentRegistry) (*Catalog, error) {
	intents := make(map[string]models.OperationSpec, len(reg.Intents))
	for _, in := range reg.Intents {
		intents[in.Name] = models.OperationSpec{
			Method:           in.Method,
			Endpoint:         in.Endpoint,
			Fields:           in.Fields,
			RequiredFields:   in.RequiredFields,
			SearchableFields: in.SearchableFields,
		}
	}
	return New(SourceFile, intents)
}

// LoadFile reads a registry file and builds a catalog from it.
func LoadFile(path string) (*Catalog, error) {
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load registry %s: %w", path, err)
	}
	return FromRegistry(reg)
}

// ToRegistry renders the catalog in the on-disk registry format.
func (c *Catalog) ToRegistry(wapiVersion string) *registry.IntentRegistry {
	reg := &registry.IntentRegistry{
		Version:     "1.0",
		WAPIVersion: wapiVersion,
		Intents:     make([]registry.Intent, 0, len(c.names)),
	}
	for _, name := range c.names {
		spec := c.intents[name]
		reg.Intents = append(reg.Intents, registry.Intent{
			Name:             name,
			Method:           spec.Method,
			Endpoint:         spec.Endpoint,
			Fields:           spec.Fields,
			RequiredFields:   spec.RequiredFields,
			SearchableFields: spec.SearchableFields,
			Tags:             []string{c.source},
		})
	}
	return reg
}

func cloneSpec(s models.OperationSpec) models.OperationSpec {
	return models.OperationSpec{
		Method:           s.Method,
		Endpoint:         s.Endpoint,
		Fields:           cloneStrings(s.Fields),
		RequiredFields:   cloneStrings(s.RequiredFields),
		SearchableFields: cloneStrings(s.SearchableFields),
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
