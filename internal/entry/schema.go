package entry

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[Type]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() {
	schemas = make(map[Type]*gojsonschema.Schema, len(knownTypes))
	for t := range knownTypes {
		data, err := schemaFS.ReadFile("schemas/" + string(t) + ".json")
		if err != nil {
			schemasErr = fmt.Errorf("reading schema for %s: %w", t, err)
			return
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			schemasErr = fmt.Errorf("compiling schema for %s: %w", t, err)
			return
		}
		schemas[t] = s
	}
}

// ValidationError lists the schema violations of one entry.
type ValidationError struct {
	Name   string
	Type   Type
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s entry %q is invalid:\n  - %s", e.Type, e.Name, strings.Join(e.Errors, "\n  - "))
}

// Validate checks name and fields against the schema of entry type t.
func Validate(t Type, name string, f Fields) error {
	schemasOnce.Do(loadSchemas)
	if schemasErr != nil {
		return schemasErr
	}

	s, ok := schemas[t]
	if !ok {
		return fmt.Errorf("no schema for entry type %q", t)
	}

	var problems []string
	if strings.TrimSpace(name) == "" {
		problems = append(problems, "name: must not be empty")
	}

	doc, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling fields of %q: %w", name, err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validating %q: %w", name, err)
	}
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	if len(problems) > 0 {
		return &ValidationError{Name: name, Type: t, Errors: problems}
	}
	return nil
}
