package config

import "time"

// Config represents the vaultsync.yaml configuration file.
type Config struct {
	Version   int               `yaml:"version"`
	Backend   Backend           `yaml:"backend"`
	Path      PathSettings      `yaml:"path,omitempty"`
	Ambiguity string            `yaml:"ambiguity,omitempty"` // "error", "first"
	Variables map[string]string `yaml:"variables,omitempty"`

	// Probe is the default reachability probe for jobs that set none.
	Probe *Probe `yaml:"probe,omitempty"`

	TypeDefinitions []TypeDefinition `yaml:"type_definitions,omitempty"`
	Jobs            []Job            `yaml:"jobs"`
}

// Backend selects and configures the backing store.
type Backend struct {
	Type string `yaml:"type"` // "file", "sql", "http"

	// File backend.
	Path string `yaml:"path,omitempty"`

	// SQL backend.
	Driver string `yaml:"driver,omitempty"` // "postgres", "mysql"
	DSN    string `yaml:"dsn,omitempty"`

	// HTTP backend. AppKey and AppSecret accept secret references.
	URL        string `yaml:"url,omitempty"`
	AppKey     string `yaml:"app_key,omitempty"`
	AppSecret  string `yaml:"app_secret,omitempty"`
	MinVersion string `yaml:"min_version,omitempty"`
	Insecure   bool   `yaml:"insecure,omitempty"`

	Timeout time.Duration `yaml:"timeout,omitempty"`

	// VaultWait bounds how long a vault switch may take to show up.
	VaultWait     time.Duration `yaml:"vault_wait,omitempty"`
	VaultInterval time.Duration `yaml:"vault_interval,omitempty"`
}

// PathSettings controls how vault paths are split and compared.
type PathSettings struct {
	Delimiter     string `yaml:"delimiter,omitempty"`
	CaseSensitive *bool  `yaml:"case_sensitive,omitempty"`
}

// IsCaseSensitive reports whether names compare case-sensitively. Unset
// means case-insensitive.
func (p PathSettings) IsCaseSensitive() bool {
	return p.CaseSensitive != nil && *p.CaseSensitive
}

// Probe is a TCP reachability check run before creating an entry.
type Probe struct {
	Ports   []int         `yaml:"ports"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// TypeDefinition overrides the default entry type for a source type.
type TypeDefinition struct {
	Source    string `yaml:"source"`
	EntryType string `yaml:"entry_type"`
}

// Job binds one inventory source to one destination folder in a vault.
type Job struct {
	Name   string `yaml:"name"`
	Source Source `yaml:"source"`

	// Root is the marker located in each record's hierarchy. Segments
	// below it become the vault path under Destination.
	Root string `yaml:"root,omitempty"`

	Vault       string `yaml:"vault,omitempty"`
	Destination string `yaml:"destination"`
	EntryType   string `yaml:"entry_type,omitempty"`
	Probe       *Probe `yaml:"probe,omitempty"`

	DeleteOrphans   bool  `yaml:"delete_orphans,omitempty"`
	PruneDuplicates *bool `yaml:"prune_duplicates,omitempty"`

	// Fields maps entry field names to templates rendered per record.
	Fields map[string]string `yaml:"fields,omitempty"`
}

// PruneDuplicatesEnabled reports the effective duplicate policy. Duplicates
// are pruned unless the job turns it off.
func (j Job) PruneDuplicatesEnabled() bool {
	return j.PruneDuplicates == nil || *j.PruneDuplicates
}

// Source configures an inventory source.
type Source struct {
	Type string `yaml:"type"` // "ad", "vmware", "csv"

	// Shared by ad and vmware. Password accepts secret references.
	URL      string `yaml:"url,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	// Active Directory.
	BaseDN          string `yaml:"base_dn,omitempty"`
	Filter          string `yaml:"filter,omitempty"`
	PageSize        uint32 `yaml:"page_size,omitempty"`
	IncludeDisabled bool   `yaml:"include_disabled,omitempty"`
	UseDN           bool   `yaml:"use_dn,omitempty"`

	// VMware.
	Datacenter string `yaml:"datacenter,omitempty"`

	// CSV.
	Path          string            `yaml:"path,omitempty"`
	Delimiter     string            `yaml:"delimiter,omitempty"`
	PathDelimiter string            `yaml:"path_delimiter,omitempty"`
	Columns       map[string]string `yaml:"columns,omitempty"`
}

// Defaults applied by ApplyDefaults.
const (
	DefaultDelimiter     = `\`
	DefaultAmbiguity     = "error"
	DefaultTimeout       = 30 * time.Second
	DefaultProbeTimeout  = 2 * time.Second
	DefaultVaultWait     = 30 * time.Second
	DefaultVaultInterval = time.Second
	DefaultPageSize      = 500
)

// ApplyDefaults fills unset settings in place.
func ApplyDefaults(cfg *Config) {
	if cfg.Path.Delimiter == "" {
		cfg.Path.Delimiter = DefaultDelimiter
	}
	if cfg.Ambiguity == "" {
		cfg.Ambiguity = DefaultAmbiguity
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultTimeout
	}
	if cfg.Backend.VaultWait == 0 {
		cfg.Backend.VaultWait = DefaultVaultWait
	}
	if cfg.Backend.VaultInterval == 0 {
		cfg.Backend.VaultInterval = DefaultVaultInterval
	}
	if cfg.Probe != nil && cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = DefaultProbeTimeout
	}
	for i := range cfg.Jobs {
		j := &cfg.Jobs[i]
		if j.Probe == nil && cfg.Probe != nil {
			p := *cfg.Probe
			p.Ports = append([]int(nil), cfg.Probe.Ports...)
			j.Probe = &p
		}
		if j.Probe != nil && j.Probe.Timeout == 0 {
			j.Probe.Timeout = DefaultProbeTimeout
		}
		if j.Source.Type == "ad" && j.Source.PageSize == 0 {
			j.Source.PageSize = DefaultPageSize
		}
	}
}

// FindJob returns the job named name, or nil.
func (c *Config) FindJob(name string) *Job {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i]
		}
	}
	return nil
}
