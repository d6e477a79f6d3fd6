package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Version: 1,
		Backend: Backend{Type: "file", Path: "./vault.yaml"},
		Jobs: []Job{{
			Name:        "servers",
			Source:      Source{Type: "csv", Path: "./servers.csv"},
			Destination: "Servers",
		}},
	}
}

func containsSubstring(errs []string, sub string) bool {
	for _, e := range errs {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}

func TestLoadValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.Len(t, cfg.Jobs, 3)
	// Defaults applied after validation.
	assert.Equal(t, DefaultVaultWait, cfg.Backend.VaultWait)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/vaultsync.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidReturnsValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 2\n"), 0o644))

	_, err := Load(path)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, err.Error(), "unsupported version 2")
	assert.Contains(t, err.Error(), "at least one job")
}

func TestValidateValid(t *testing.T) {
	assert.Empty(t, Validate(validConfig()))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"version zero", func(c *Config) { c.Version = 0 }, "unsupported version"},
		{"no jobs", func(c *Config) { c.Jobs = nil }, "at least one job"},
		{"backend type missing", func(c *Config) { c.Backend = Backend{} }, "'type' is required"},
		{"backend type unknown", func(c *Config) { c.Backend = Backend{Type: "ldap"} }, "unknown type 'ldap'"},
		{"file backend path", func(c *Config) { c.Backend = Backend{Type: "file"} }, "requires 'path'"},
		{"sql driver", func(c *Config) { c.Backend = Backend{Type: "sql", Driver: "sqlite", DSN: "x"} }, "unknown sql driver 'sqlite'"},
		{"sql dsn", func(c *Config) { c.Backend = Backend{Type: "sql", Driver: "mysql"} }, "requires 'dsn'"},
		{"http credentials", func(c *Config) { c.Backend = Backend{Type: "http", URL: "https://v"} }, "'app_key' and 'app_secret'"},
		{"ambiguity", func(c *Config) { c.Ambiguity = "last" }, "invalid ambiguity policy 'last'"},
		{"delimiter whitespace", func(c *Config) { c.Path.Delimiter = " " }, "whitespace"},
		{"job name missing", func(c *Config) { c.Jobs[0].Name = "" }, "'name' is required"},
		{"duplicate job", func(c *Config) { c.Jobs = append(c.Jobs, c.Jobs[0]) }, "duplicate job name 'servers'"},
		{"source type missing", func(c *Config) { c.Jobs[0].Source = Source{} }, "source 'type' is required"},
		{"source type unknown", func(c *Config) { c.Jobs[0].Source = Source{Type: "ftp"} }, "unknown source type 'ftp'"},
		{"ad requires url", func(c *Config) { c.Jobs[0].Source = Source{Type: "ad", BaseDN: "DC=corp"} }, "requires 'url'"},
		{"ad requires base_dn", func(c *Config) { c.Jobs[0].Source = Source{Type: "ad", URL: "ldap://dc"} }, "requires 'base_dn'"},
		{"vmware requires username", func(c *Config) { c.Jobs[0].Source = Source{Type: "vmware", URL: "https://vc"} }, "requires 'username'"},
		{"csv delimiter", func(c *Config) { c.Jobs[0].Source.Delimiter = ";;" }, "single character"},
		{"entry type unknown", func(c *Config) { c.Jobs[0].EntryType = "telnet" }, "unknown entry type"},
		{"entry type folder", func(c *Config) { c.Jobs[0].EntryType = "folder" }, "cannot be synced as a leaf"},
		{"probe no ports", func(c *Config) { c.Jobs[0].Probe = &Probe{} }, "at least one port"},
		{"probe port range", func(c *Config) { c.Probe = &Probe{Ports: []int{70000}} }, "port 70000 out of range"},
		{"unknown field", func(c *Config) { c.Jobs[0].Fields = map[string]string{"hostname": "x"} }, "unknown field 'hostname'"},
		{"type definition", func(c *Config) {
			c.TypeDefinitions = []TypeDefinition{{Source: "nis", EntryType: "ssh"}}
		}, "unknown source type 'nis'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := Validate(cfg)
			assert.True(t, containsSubstring(errs, tt.want), "want %q in %v", tt.want, errs)
		})
	}
}

func TestLoadHierarchicalNoInherit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vaultsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(exampleConfig), 0o644))

	result, err := LoadHierarchical(HierarchicalOptions{ProjectPath: path, NoInherit: true})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Config.Version)
	require.Len(t, result.Layers, 1)
	assert.Equal(t, LevelProject, result.Layers[0].Level)
	assert.True(t, result.Layers[0].Loaded)
}

func TestLoadHierarchicalMergesLayers(t *testing.T) {
	dir := t.TempDir()

	sysConfig := `
version: 1
backend:
  type: sql
  driver: postgres
  dsn: postgres://vault@db/vault
variables:
  domain: CORP
jobs:
  - name: org-accounts
    source:
      type: csv
      path: /srv/accounts.csv
    destination: Accounts
`
	sysPath := filepath.Join(dir, "system.yaml")
	require.NoError(t, os.WriteFile(sysPath, []byte(sysConfig), 0o644))

	projConfig := `
version: 1
variables:
  site: paris
jobs:
  - name: servers
    source:
      type: ad
      url: ldap://dc01
      base_dn: DC=corp,DC=local
    root: Servers
    destination: AD
`
	projPath := filepath.Join(dir, "vaultsync.yaml")
	require.NoError(t, os.WriteFile(projPath, []byte(projConfig), 0o644))

	result, err := LoadHierarchical(HierarchicalOptions{
		ProjectPath:      projPath,
		SystemConfigPath: sysPath,
		UserConfigPath:   filepath.Join(dir, "nonexistent", "vaultsync.yaml"),
	})
	require.NoError(t, err)

	assert.Len(t, result.Config.Jobs, 2)
	assert.Equal(t, "sql", result.Config.Backend.Type)
	assert.Equal(t, "CORP", result.Config.Variables["domain"])
	assert.Equal(t, "paris", result.Config.Variables["site"])

	loaded := 0
	for _, l := range result.Layers {
		if l.Loaded {
			loaded++
		}
	}
	assert.Equal(t, 2, loaded)
}

func TestLoadHierarchicalMissingProject(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadHierarchical(HierarchicalOptions{
		ProjectPath: filepath.Join(dir, "vaultsync.yaml"),
		NoInherit:   true,
	})
	assert.Error(t, err)
}

func TestLoadHierarchicalVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	sysPath := filepath.Join(dir, "system.yaml")
	require.NoError(t, os.WriteFile(sysPath, []byte("version: 2\n"), 0o644))
	projPath := filepath.Join(dir, "project.yaml")
	require.NoError(t, os.WriteFile(projPath, []byte(exampleConfig), 0o644))

	_, err := LoadHierarchical(HierarchicalOptions{
		ProjectPath:      projPath,
		SystemConfigPath: sysPath,
		UserConfigPath:   filepath.Join(dir, "none.yaml"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version mismatch")
}
