// Package schema provides explicit schema registration for the data
// layer, replacing reflection-driven field mapping: every persisted
// struct is described once by a Descriptor rather than inferred at
// runtime.
package schema

import (
	"fmt"
	"sync"
)

// ColumnDescriptor describes one field of a persisted schema: its name,
// its Go type tag (for decoding), its SQL type (for DDL/dialect mapping),
// and the JSON path used to read it out of a document-backed record.
type ColumnDescriptor struct {
	Name    string
	GoType  string
	SQLType string
	JSONPath string
	Indexed bool
}

// Descriptor is the explicit registration for one schema key.
type Descriptor struct {
	Key            string
	PrimaryKeyField string
	Columns        []ColumnDescriptor
}

// Column looks up a column by name.
func (d Descriptor) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// Registry holds every registered schema descriptor, keyed by schema key.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{descriptors: make(map[string]Descriptor)}
}

// Register adds or replaces a Descriptor.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[d.Key] = d
}

// Get returns the Descriptor for schemaKey.
func (r *Registry) Get(schemaKey string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[schemaKey]
	if !ok {
		return Descriptor{}, fmt.Errorf("schema: no descriptor registered for %q", schemaKey)
	}
	return d, nil
}

// Keys returns every registered schema key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.descriptors))
	for k := range r.descriptors {
		keys = append(keys, k)
	}
	return keys
}
