package filestore

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/sandbox"
)

// Document is the on-disk vault file.
type Document struct {
	Version      int           `yaml:"version"`
	CurrentVault string        `yaml:"current_vault,omitempty"`
	Vaults       []VaultRecord `yaml:"vaults"`
	Roles        []RoleRecord  `yaml:"roles,omitempty"`
}

// VaultRecord holds one vault and everything in it.
type VaultRecord struct {
	ID           string             `yaml:"id"`
	Name         string             `yaml:"name"`
	AllowOffline bool               `yaml:"allow_offline,omitempty"`
	Entries      []EntryRecord      `yaml:"entries,omitempty"`
	Permissions  []PermissionRecord `yaml:"permissions,omitempty"`
}

// EntryRecord is a folder or entry. Parent lists the folder segments from
// the vault root so the file does not depend on the path delimiter.
type EntryRecord struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Parent    []string     `yaml:"parent,flow,omitempty"`
	Type      string       `yaml:"type"`
	Fields    entry.Fields `yaml:"fields,omitempty"`
	CreatedAt time.Time    `yaml:"created_at"`
}

// PermissionRecord grants a right on an object to roles.
type PermissionRecord struct {
	ObjectID  string   `yaml:"object_id"`
	Right     string   `yaml:"right"`
	Roles     []string `yaml:"roles,flow"`
	Inherited bool     `yaml:"inherited,omitempty"`
}

// RoleRecord is a security role.
type RoleRecord struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Load reads and validates a vault file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vault file %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing vault file %s: %w", path, err)
	}

	if errs := Validate(&doc); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	return &doc, nil
}

// Save writes a vault file atomically. The file may not escape its own
// directory through a symlink.
func Save(path string, doc *Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling vault file: %w", err)
	}

	if err := sandbox.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing vault file %s: %w", path, err)
	}
	return nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("vault file validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Document for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(doc *Document) []string {
	var errs []string

	if doc.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version 1 is supported", doc.Version))
	}

	ids := make(map[string]bool)
	claim := func(prefix, id string) {
		switch {
		case id == "":
			errs = append(errs, fmt.Sprintf("%s: 'id' is required", prefix))
		case ids[id]:
			errs = append(errs, fmt.Sprintf("%s: duplicate id '%s'", prefix, id))
		default:
			ids[id] = true
		}
	}

	vaultNames := make(map[string]bool)
	for i, v := range doc.Vaults {
		prefix := fmt.Sprintf("vault[%d]", i)
		if v.Name != "" {
			prefix = fmt.Sprintf("vault '%s'", v.Name)
		}
		claim(prefix, v.ID)

		if v.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		} else if vaultNames[v.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate vault name '%s'", prefix, v.Name))
		} else {
			vaultNames[v.Name] = true
		}

		for j, e := range v.Entries {
			eprefix := fmt.Sprintf("%s: entry[%d]", prefix, j)
			if e.Name != "" {
				eprefix = fmt.Sprintf("%s: entry '%s'", prefix, e.Name)
			}
			claim(eprefix, e.ID)
			if strings.TrimSpace(e.Name) == "" {
				errs = append(errs, fmt.Sprintf("%s: 'name' is required", eprefix))
			}
			if _, err := entry.ParseType(e.Type); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", eprefix, err))
			}
		}
	}

	if doc.CurrentVault != "" && !ids[doc.CurrentVault] {
		errs = append(errs, fmt.Sprintf("current_vault '%s' does not match any vault id", doc.CurrentVault))
	}

	for i, r := range doc.Roles {
		prefix := fmt.Sprintf("role[%d]", i)
		claim(prefix, r.ID)
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		}
	}

	return errs
}
