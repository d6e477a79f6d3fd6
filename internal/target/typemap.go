// Package target decides which entry type a job creates in the vault.
package target

import (
	"fmt"
	"sort"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/entry"
)

// builtinTypes is the default entry type per source type.
var builtinTypes = map[string]entry.Type{
	"ad":     entry.TypeRDP,
	"vmware": entry.TypeVMRC,
	"csv":    entry.TypeCredential,
}

// defaultPorts is the connection port per entry type, used when a record
// carries none.
var defaultPorts = map[entry.Type]int{
	entry.TypeRDP:  3389,
	entry.TypeSSH:  22,
	entry.TypeVMRC: 443,
}

// TypeMap resolves source types to entry types.
type TypeMap struct {
	definitions map[string]entry.Type
}

// NewTypeMap creates a TypeMap with built-in definitions and optional custom overrides.
func NewTypeMap(customDefs []config.TypeDefinition) (*TypeMap, error) {
	defs := make(map[string]entry.Type, len(builtinTypes)+len(customDefs))
	for src, t := range builtinTypes {
		defs[src] = t
	}
	for _, td := range customDefs {
		t, err := entry.ParseType(td.EntryType)
		if err != nil {
			return nil, fmt.Errorf("type_definitions[%s]: %w", td.Source, err)
		}
		if t == entry.TypeFolder {
			return nil, fmt.Errorf("type_definitions[%s]: folder is not an entry type", td.Source)
		}
		defs[td.Source] = t
	}
	return &TypeMap{definitions: defs}, nil
}

// Resolve returns the entry type for a source type.
func (tm *TypeMap) Resolve(sourceType string) (entry.Type, error) {
	t, ok := tm.definitions[sourceType]
	if !ok {
		return "", fmt.Errorf("no entry type for source '%s' — define it in type_definitions: [{source: %s, entry_type: credential}]", sourceType, sourceType)
	}
	return t, nil
}

// ResolveJob returns the entry type a job creates: its own entry_type when
// set, otherwise the type mapped from its source.
func (tm *TypeMap) ResolveJob(job config.Job) (entry.Type, error) {
	if job.EntryType != "" {
		t, err := entry.ParseType(job.EntryType)
		if err != nil {
			return "", fmt.Errorf("job '%s': %w", job.Name, err)
		}
		if t == entry.TypeFolder {
			return "", fmt.Errorf("job '%s': entry_type folder cannot be synced", job.Name)
		}
		return t, nil
	}
	return tm.Resolve(job.Source.Type)
}

// KnownSources returns every source type with a mapping, sorted.
func (tm *TypeMap) KnownSources() []string {
	names := make([]string, 0, len(tm.definitions))
	for name := range tm.definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsCustom returns whether a source type mapping is custom (not built-in).
func (tm *TypeMap) IsCustom(sourceType string) bool {
	_, isBuiltin := builtinTypes[sourceType]
	_, isDefined := tm.definitions[sourceType]
	return isDefined && !isBuiltin
}

// DefaultPort returns the usual port for entry type t, or 0.
func DefaultPort(t entry.Type) int {
	return defaultPorts[t]
}
