// Package transform renders job field templates into entry fields.
package transform

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/secret"
)

// FieldNames lists the entry fields a template may set.
var FieldNames = []string{"host", "port", "username", "password", "domain", "url", "description"}

var funcs = template.FuncMap{
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trimSuffix": func(suffix, s string) string {
		return strings.TrimSuffix(s, suffix)
	},
	"replace": func(from, to, s string) string {
		return strings.ReplaceAll(s, from, to)
	},
	"default": func(def, s string) string {
		if s == "" {
			return def
		}
		return s
	},
}

// Data is what a field template sees: {{ .Name }}, {{ .Host }},
// {{ .Path }}, {{ .Job }}, {{ .Var "domain" }} and {{ .Attr "whenCreated" }}.
type Data struct {
	Name string
	Host string
	Path string
	Job  string

	Vars       map[string]string
	Attributes map[string]string
}

// Var returns config variable name. A missing variable fails the render.
func (d Data) Var(name string) (string, error) {
	v, ok := d.Vars[name]
	if !ok {
		return "", fmt.Errorf("variable %q is not defined", name)
	}
	return v, nil
}

// Attr returns record attribute name, matched case-insensitively, or "".
func (d Data) Attr(name string) string {
	if v, ok := d.Attributes[name]; ok {
		return v
	}
	for k, v := range d.Attributes {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// FieldTemplates is a compiled set of job field templates.
type FieldTemplates struct {
	templates map[string]*template.Template
}

// Compile parses one template per field. Unknown field names are an error.
func Compile(fields map[string]string) (*FieldTemplates, error) {
	ft := &FieldTemplates{templates: make(map[string]*template.Template, len(fields))}
	for name, text := range fields {
		key := strings.ToLower(strings.TrimSpace(name))
		if !isField(key) {
			return nil, fmt.Errorf("unknown field '%s' — must be one of: %s", name, strings.Join(FieldNames, ", "))
		}
		tmpl, err := template.New(key).Funcs(funcs).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parsing template for %s: %w", key, err)
		}
		ft.templates[key] = tmpl
	}
	return ft, nil
}

// Fields returns the names of the compiled fields, sorted.
func (ft *FieldTemplates) Fields() []string {
	names := make([]string, 0, len(ft.templates))
	for n := range ft.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render executes every template against d and overlays the results on
// base. A rendered password that is a secret reference is resolved.
func (ft *FieldTemplates) Render(base entry.Fields, d Data) (entry.Fields, error) {
	out := base
	for _, name := range ft.Fields() {
		var buf bytes.Buffer
		if err := ft.templates[name].Execute(&buf, d); err != nil {
			return entry.Fields{}, fmt.Errorf("executing template for %s: %w", name, err)
		}
		v := strings.TrimSpace(buf.String())
		if v == "" {
			continue
		}
		if err := set(&out, name, v); err != nil {
			return entry.Fields{}, err
		}
	}
	return out, nil
}

func set(f *entry.Fields, name, v string) error {
	switch name {
	case "host":
		f.Host = v
	case "port":
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("port %q is not a valid port number", v)
		}
		f.Port = n
	case "username":
		f.Username = v
	case "password":
		if secret.IsReference(v) {
			resolved, err := secret.Resolve(v)
			if err != nil {
				return fmt.Errorf("resolving password: %w", err)
			}
			v = resolved
		}
		f.Password = v
	case "domain":
		f.Domain = v
	case "url":
		f.URL = v
	case "description":
		f.Description = v
	}
	return nil
}

func isField(name string) bool {
	for _, n := range FieldNames {
		if n == name {
			return true
		}
	}
	return false
}

// MergeVars merges global variables with per-job variables.
// Per-job vars override global vars.
func MergeVars(global map[string]string, perJob map[string]string) map[string]string {
	merged := make(map[string]string, len(global)+len(perJob))
	for k, v := range global {
		merged[k] = v
	}
	for k, v := range perJob {
		merged[k] = v
	}
	return merged
}
