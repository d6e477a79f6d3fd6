// Package source enumerates inventory records from Active Directory, a
// VMware vCenter or a CSV file.
package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/entry"
)

// Inventory enumerates the records of one source.
type Inventory interface {
	Enumerate(ctx context.Context, src config.Source) ([]Record, error)
}

// Record is one inventory item before normalization.
type Record struct {
	// Name is the item's own name as the source reports it.
	Name string

	// Hierarchy is the full chain of segments, the item's own name last.
	Hierarchy []string

	// Raw is the hierarchy as the source wrote it, used in messages.
	Raw string

	Host       string
	Fields     entry.Fields
	Attributes map[string]string

	// Err is set when the item could not be read completely. It is
	// skipped, the rest of the listing is still used.
	Err error
}

// Attr returns attribute name, matched case-insensitively.
func (r Record) Attr(name string) string {
	if v, ok := r.Attributes[name]; ok {
		return v
	}
	for k, v := range r.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// SourceError represents an error associated with a specific source operation.
type SourceError struct {
	Source    string
	Operation string
	Err       error
	Hint      string
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s: %s failed: %s", e.Source, e.Operation, e.Err)
	if e.Hint != "" {
		msg += " — " + e.Hint
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Registry maps source type strings to Inventory implementations.
type Registry struct {
	inventories map[string]Inventory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{inventories: make(map[string]Inventory)}
}

// DefaultRegistry registers the ad, vmware and csv sources. Relative CSV
// paths resolve against baseDir.
func DefaultRegistry(baseDir string) *Registry {
	reg := NewRegistry()
	reg.Register("ad", &AD{})
	reg.Register("vmware", &VMware{})
	reg.Register("csv", &CSV{BaseDir: baseDir})
	return reg
}

// Register adds an inventory for the given source type.
func (r *Registry) Register(sourceType string, inv Inventory) {
	r.inventories[sourceType] = inv
}

// Get returns the inventory for the given source type.
func (r *Registry) Get(sourceType string) (Inventory, error) {
	inv, ok := r.inventories[sourceType]
	if !ok {
		return nil, fmt.Errorf("unknown source type '%s' — supported types: %s", sourceType, r.supportedTypes())
	}
	return inv, nil
}

func (r *Registry) supportedTypes() string {
	types := make([]string, 0, len(r.inventories))
	for t := range r.inventories {
		types = append(types, t)
	}
	if len(types) == 0 {
		return "(none registered)"
	}
	sort.Strings(types)
	return strings.Join(types, ", ")
}

// HTTPClient abstracts HTTP operations for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
