package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bianoble/vaultsync/internal/entry"
)

// FieldNames lists the entry fields a job may template.
var FieldNames = []string{"host", "port", "username", "password", "domain", "url", "description"}

// Load reads and validates a vaultsync.yaml configuration file.
func Load(path string) (*Config, error) {
	cfg, err := parse(path)
	if err != nil {
		return nil, err
	}

	if errs := Validate(cfg); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	ApplyDefaults(cfg)
	return cfg, nil
}

func parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// HierarchicalOptions controls LoadHierarchical.
type HierarchicalOptions struct {
	ProjectPath      string
	SystemConfigPath string
	UserConfigPath   string

	// NoInherit loads only the project layer.
	NoInherit bool
}

// HierarchicalResult is the merged config and what each layer contributed.
type HierarchicalResult struct {
	Config *Config
	Layers []ConfigLayerInfo
}

// LoadHierarchical loads the system, user and project layers that exist,
// merges them in precedence order and validates the result. The project
// layer must exist.
func LoadHierarchical(opts HierarchicalOptions) (*HierarchicalResult, error) {
	var layers []ConfigLayerInfo
	if opts.NoInherit {
		layers = []ConfigLayerInfo{{Path: opts.ProjectPath, Level: LevelProject}}
	} else {
		layers = DiscoverPaths(DiscoverOptions{
			ProjectPath:      opts.ProjectPath,
			SystemConfigPath: opts.SystemConfigPath,
			UserConfigPath:   opts.UserConfigPath,
		})
	}

	var configs []*Config
	for i := range layers {
		l := &layers[i]
		if _, err := os.Stat(l.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) && l.Level != LevelProject {
				continue
			}
			l.Err = err
			return nil, fmt.Errorf("%s config %s: %w", l.Level, l.Path, err)
		}
		cfg, err := parse(l.Path)
		if err != nil {
			l.Err = err
			return nil, err
		}
		l.Loaded = true
		configs = append(configs, cfg)
	}

	merged, err := MergeAll(configs)
	if err != nil {
		return nil, err
	}
	if errs := Validate(merged); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	ApplyDefaults(merged)

	return &HierarchicalResult{Config: merged, Layers: layers}, nil
}

// ValidationError holds multiple validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Validate checks a Config for semantic correctness.
// Returns a list of validation error messages (empty if valid).
func Validate(cfg *Config) []string {
	var errs []string

	if cfg.Version != 1 {
		errs = append(errs, fmt.Sprintf("unsupported version %d — only version 1 is supported", cfg.Version))
	}

	errs = append(errs, validateBackend(cfg.Backend)...)

	if d := cfg.Path.Delimiter; d != "" && strings.TrimSpace(d) != d {
		errs = append(errs, fmt.Sprintf("path: delimiter %q must not contain whitespace", d))
	}

	switch cfg.Ambiguity {
	case "", "error", "first":
	default:
		errs = append(errs, fmt.Sprintf("invalid ambiguity policy '%s' — must be one of: error, first", cfg.Ambiguity))
	}

	if cfg.Probe != nil {
		errs = append(errs, validateProbe(*cfg.Probe, "probe")...)
	}

	for i, td := range cfg.TypeDefinitions {
		prefix := fmt.Sprintf("type_definition[%d]", i)
		if !knownSourceType(td.Source) {
			errs = append(errs, fmt.Sprintf("%s: unknown source type '%s' — must be one of: %s", prefix, td.Source, strings.Join(SourceTypes, ", ")))
		}
		if _, err := entry.ParseType(td.EntryType); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
		}
	}

	if len(cfg.Jobs) == 0 {
		errs = append(errs, "at least one job is required")
	}

	jobNames := make(map[string]bool)
	for i, job := range cfg.Jobs {
		prefix := fmt.Sprintf("job[%d]", i)
		if job.Name != "" {
			prefix = fmt.Sprintf("job '%s'", job.Name)
		}

		if job.Name == "" {
			errs = append(errs, fmt.Sprintf("%s: 'name' is required", prefix))
		} else if jobNames[job.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate job name '%s'", prefix, job.Name))
		} else {
			jobNames[job.Name] = true
		}

		errs = append(errs, validateSource(job.Source, prefix)...)

		if job.EntryType != "" {
			if t, err := entry.ParseType(job.EntryType); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", prefix, err))
			} else if t == entry.TypeFolder {
				errs = append(errs, fmt.Sprintf("%s: entry_type 'folder' cannot be synced as a leaf", prefix))
			}
		}

		if job.Probe != nil {
			errs = append(errs, validateProbe(*job.Probe, prefix+": probe")...)
		}

		for _, k := range sortedKeys(job.Fields) {
			if !knownField(k) {
				errs = append(errs, fmt.Sprintf("%s: unknown field '%s' — must be one of: %s", prefix, k, strings.Join(FieldNames, ", ")))
			}
		}
	}

	return errs
}

// SourceTypes lists the inventory source types.
var SourceTypes = []string{"ad", "vmware", "csv"}

func knownSourceType(t string) bool {
	for _, s := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

func knownField(name string) bool {
	for _, f := range FieldNames {
		if f == name {
			return true
		}
	}
	return false
}

func validateBackend(b Backend) []string {
	var errs []string

	switch b.Type {
	case "file":
		if b.Path == "" {
			errs = append(errs, "backend: type 'file' requires 'path' — add 'path: ./vault.yaml' to the backend definition")
		}
	case "sql":
		switch b.Driver {
		case "postgres", "mysql":
		case "":
			errs = append(errs, "backend: type 'sql' requires 'driver' — must be one of: postgres, mysql")
		default:
			errs = append(errs, fmt.Sprintf("backend: unknown sql driver '%s' — must be one of: postgres, mysql", b.Driver))
		}
		if b.DSN == "" {
			errs = append(errs, "backend: type 'sql' requires 'dsn'")
		}
	case "http":
		if b.URL == "" {
			errs = append(errs, "backend: type 'http' requires 'url' — add 'url: https://...' to the backend definition")
		}
		if b.AppKey == "" || b.AppSecret == "" {
			errs = append(errs, "backend: type 'http' requires 'app_key' and 'app_secret'")
		}
	case "":
		errs = append(errs, "backend: 'type' is required — must be one of: file, sql, http")
	default:
		errs = append(errs, fmt.Sprintf("backend: unknown type '%s' — must be one of: file, sql, http", b.Type))
	}

	if b.Timeout < 0 || b.VaultWait < 0 || b.VaultInterval < 0 {
		errs = append(errs, "backend: durations must not be negative")
	}
	return errs
}

func validateProbe(p Probe, prefix string) []string {
	var errs []string
	if len(p.Ports) == 0 {
		errs = append(errs, fmt.Sprintf("%s: at least one port is required", prefix))
	}
	for _, port := range p.Ports {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("%s: port %d out of range", prefix, port))
		}
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Sprintf("%s: timeout must not be negative", prefix))
	}
	return errs
}

func validateSource(src Source, prefix string) []string {
	var errs []string

	switch src.Type {
	case "ad":
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("%s: source type 'ad' requires 'url' — add 'url: ldaps://dc.example.com' to the source definition", prefix))
		}
		if src.BaseDN == "" {
			errs = append(errs, fmt.Sprintf("%s: source type 'ad' requires 'base_dn'", prefix))
		}
	case "vmware":
		if src.URL == "" {
			errs = append(errs, fmt.Sprintf("%s: source type 'vmware' requires 'url' — add 'url: https://vcenter.example.com' to the source definition", prefix))
		}
		if src.Username == "" {
			errs = append(errs, fmt.Sprintf("%s: source type 'vmware' requires 'username'", prefix))
		}
	case "csv":
		if src.Path == "" {
			errs = append(errs, fmt.Sprintf("%s: source type 'csv' requires 'path' — add 'path: ./inventory.csv' to the source definition", prefix))
		}
		if len([]rune(src.Delimiter)) > 1 {
			errs = append(errs, fmt.Sprintf("%s: csv delimiter %q must be a single character", prefix, src.Delimiter))
		}
	case "":
		errs = append(errs, fmt.Sprintf("%s: source 'type' is required — must be one of: %s", prefix, strings.Join(SourceTypes, ", ")))
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown source type '%s' — must be one of: %s", prefix, src.Type, strings.Join(SourceTypes, ", ")))
	}

	return errs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
