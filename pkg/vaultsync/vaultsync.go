// Package vaultsync provides the public Go library API for vaultsync.
//
// vaultsync keeps a credential vault's folder tree in step with an
// inventory source such as Active Directory, vCenter or a CSV file. This
// package exposes a Client for embedding it in other Go programs.
//
// # Basic Usage
//
//	client, err := vaultsync.New(vaultsync.Options{
//	    ConfigPath: "vaultsync.yaml",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Preview what a sync would change
//	status, err := client.Status(ctx, nil)
//
//	// Apply it
//	result, err := client.Sync(ctx, vaultsync.SyncOptions{})
package vaultsync

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/engine"
	"github.com/bianoble/vaultsync/internal/metrics"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/source"
	"github.com/bianoble/vaultsync/internal/store"
)

// SyncOptions configures a sync or prune run.
type SyncOptions struct {
	DryRun bool

	// Jobs restricts the run to the named jobs. Empty means all.
	Jobs []string
}

// ExportOptions configures an entry export.
type ExportOptions struct {
	// Vault, when set, is selected before exporting.
	Vault string

	// Root limits the export to the subtree at this path.
	Root string

	Folders   bool
	Passwords bool

	// Comma is the CSV delimiter. Default ",".
	Comma string
}

// Syncer reconciles jobs with the vault.
type Syncer interface {
	Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error)
}

// Pruner removes duplicates and orphans without creating anything.
type Pruner interface {
	Prune(ctx context.Context, opts SyncOptions) (*SyncResult, error)
}

// Importer loads entries from a CSV file.
type Importer interface {
	Import(ctx context.Context, opts ImportOptions) (*SyncResult, error)
}

// Options configures a vaultsync client.
type Options struct {
	// ProjectRoot anchors relative paths in the config (file backend, CSV
	// sources). If empty, defaults to the directory containing ConfigPath.
	ProjectRoot string

	// ConfigPath is the path to the config file. Default: "vaultsync.yaml".
	ConfigPath string

	// SystemConfigPath overrides the system-level config path.
	// Empty uses the OS default.
	SystemConfigPath string

	// UserConfigPath overrides the user-level config path.
	// Empty uses the OS default.
	UserConfigPath string

	// NoInherit disables config inheritance; only the project config is used.
	NoInherit bool

	// MetricsFile, when set, receives the run's metrics in the Prometheus
	// text format after every sync, prune, status or import.
	MetricsFile string
}

// Client is the main entry point for the vaultsync library.
// It implements Syncer, Pruner and Importer.
type Client struct {
	registry         *source.Registry
	projectRoot      string
	configPath       string
	systemConfigPath string
	userConfigPath   string
	noInherit        bool
	metricsFile      string
}

// New creates a new vaultsync Client.
func New(opts Options) (*Client, error) {
	if opts.ConfigPath == "" {
		opts.ConfigPath = "vaultsync.yaml"
	}

	root := opts.ProjectRoot
	if root == "" {
		abs, err := filepath.Abs(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("resolving config path: %w", err)
		}
		root = filepath.Dir(abs)
	}

	return &Client{
		registry:         source.DefaultRegistry(root),
		projectRoot:      root,
		configPath:       opts.ConfigPath,
		systemConfigPath: opts.SystemConfigPath,
		userConfigPath:   opts.UserConfigPath,
		noInherit:        opts.NoInherit,
		metricsFile:      opts.MetricsFile,
	}, nil
}

// LoadConfig loads and merges the config layers.
func (c *Client) LoadConfig() (*config.HierarchicalResult, error) {
	return config.LoadHierarchical(config.HierarchicalOptions{
		ProjectPath:      c.configPath,
		SystemConfigPath: c.systemConfigPath,
		UserConfigPath:   c.userConfigPath,
		NoInherit:        c.noInherit,
	})
}

// withStore loads the config, opens the backend and hands both to fn.
func (c *Client) withStore(ctx context.Context, fn func(cfg config.Config, s store.Store) error) error {
	res, err := c.LoadConfig()
	if err != nil {
		return err
	}
	s, err := engine.OpenStore(ctx, *res.Config, c.projectRoot)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(*res.Config, s)
}

func (c *Client) run(ctx context.Context, fn func(eng *engine.SyncEngine, cfg config.Config) (*SyncResult, error)) (*SyncResult, error) {
	var result *SyncResult
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		eng := &engine.SyncEngine{Store: s, Registry: c.registry}
		if c.metricsFile != "" {
			eng.Metrics = metrics.New()
		}
		var err error
		result, err = fn(eng, cfg)
		if err != nil {
			return err
		}
		if eng.Metrics != nil {
			if err := eng.Metrics.WriteTextfile(c.metricsFile); err != nil {
				return err
			}
		}
		return nil
	})
	return result, err
}

// Sync creates, updates and deletes entries per job policy.
func (c *Client) Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	return c.run(ctx, func(eng *engine.SyncEngine, cfg config.Config) (*SyncResult, error) {
		return eng.Sync(ctx, cfg, engine.SyncOptions{Mode: engine.ModeSync, DryRun: opts.DryRun, Jobs: opts.Jobs})
	})
}

// Prune deletes duplicate and orphaned entries in each job's destination.
func (c *Client) Prune(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	return c.run(ctx, func(eng *engine.SyncEngine, cfg config.Config) (*SyncResult, error) {
		return eng.Sync(ctx, cfg, engine.SyncOptions{Mode: engine.ModePrune, DryRun: opts.DryRun, Jobs: opts.Jobs})
	})
}

// Status reports what Sync would do without changing anything.
func (c *Client) Status(ctx context.Context, jobs []string) (*SyncResult, error) {
	return c.Sync(ctx, SyncOptions{DryRun: true, Jobs: jobs})
}

// Import creates and updates entries from a CSV file. Relative paths
// resolve against the project root.
func (c *Client) Import(ctx context.Context, opts ImportOptions) (*SyncResult, error) {
	return c.run(ctx, func(eng *engine.SyncEngine, cfg config.Config) (*SyncResult, error) {
		return eng.Import(ctx, cfg, opts)
	})
}

// ExportPermissions writes the permission matrix of vault (or the current
// vault when empty) to w. It returns the number of rows written.
func (c *Client) ExportPermissions(ctx context.Context, w io.Writer, vault, comma string) (int, error) {
	var n int
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		if err := c.use(ctx, cfg, s, vault); err != nil {
			return err
		}
		var err error
		n, err = (&engine.ExportEngine{Store: s, Delimiter: cfg.Path.Delimiter, Comma: comma}).ExportPermissions(ctx, w)
		return err
	})
	return n, err
}

// ExportEntries writes the entries under opts.Root to w.
func (c *Client) ExportEntries(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	var n int
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		if err := c.use(ctx, cfg, s, opts.Vault); err != nil {
			return err
		}
		var err error
		n, err = (&engine.ExportEngine{Store: s, Delimiter: cfg.Path.Delimiter, Comma: opts.Comma}).
			ExportEntries(ctx, w, engine.ExportOptions{
				Root:      pathkey.Split(opts.Root, cfg.Path.Delimiter),
				Folders:   opts.Folders,
				Passwords: opts.Passwords,
			})
		return err
	})
	return n, err
}

func (c *Client) use(ctx context.Context, cfg config.Config, s store.Store, vault string) error {
	if vault == "" {
		return nil
	}
	_, err := vaultEngine(cfg, s).Use(ctx, vault)
	return err
}

func vaultEngine(cfg config.Config, s store.Store) *engine.VaultEngine {
	return &engine.VaultEngine{
		Store:     s,
		Ambiguity: cfg.Ambiguity,
		Wait:      cfg.Backend.VaultWait,
		Interval:  cfg.Backend.VaultInterval,
	}
}

// Vaults lists every vault and the current one.
func (c *Client) Vaults(ctx context.Context) ([]Vault, Vault, error) {
	var (
		vaults []Vault
		cur    Vault
	)
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		var err error
		vaults, cur, err = vaultEngine(cfg, s).List(ctx)
		return err
	})
	return vaults, cur, err
}

// UseVault makes ref the current vault and waits for the switch.
func (c *Client) UseVault(ctx context.Context, ref string) (Vault, error) {
	var v Vault
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		var err error
		v, err = vaultEngine(cfg, s).Use(ctx, ref)
		return err
	})
	return v, err
}

// SetOffline enables or disables offline mode for vault ref.
func (c *Client) SetOffline(ctx context.Context, ref string, allow bool) (Vault, error) {
	var v Vault
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		var err error
		v, err = vaultEngine(cfg, s).SetOffline(ctx, ref, allow)
		return err
	})
	return v, err
}

// Roles lists every security role.
func (c *Client) Roles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		var err error
		roles, err = (&engine.RoleEngine{Store: s, Ambiguity: cfg.Ambiguity}).List(ctx)
		return err
	})
	return roles, err
}

// RenameRole renames role ref (an ID or name) to name.
func (c *Client) RenameRole(ctx context.Context, ref, name string, dryRun bool) (Role, error) {
	var r Role
	err := c.withStore(ctx, func(cfg config.Config, s store.Store) error {
		var err error
		r, err = (&engine.RoleEngine{Store: s, Ambiguity: cfg.Ambiguity}).Rename(ctx, ref, name, dryRun)
		return err
	})
	return r, err
}
