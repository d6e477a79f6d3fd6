package engine

import (
	"context"
	"fmt"

	"github.com/bianoble/vaultsync/internal/config"
)

// ImportOptions describes a one-off CSV import.
type ImportOptions struct {
	Path          string
	Delimiter     string
	PathDelimiter string
	Columns       map[string]string

	// Destination is the vault folder the category paths hang under.
	Destination string
	Vault       string
	EntryType   string
	Fields      map[string]string

	DryRun bool
}

// Import creates and updates entries from a CSV file, each under the
// folder its category column names. It never deletes.
func (e *SyncEngine) Import(ctx context.Context, cfg config.Config, opts ImportOptions) (*SyncResult, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("import: a CSV path is required")
	}
	job := config.Job{
		Name: "import",
		Source: config.Source{
			Type:          "csv",
			Path:          opts.Path,
			Delimiter:     opts.Delimiter,
			PathDelimiter: opts.PathDelimiter,
			Columns:       opts.Columns,
		},
		Vault:       opts.Vault,
		Destination: opts.Destination,
		EntryType:   opts.EntryType,
		Fields:      opts.Fields,
	}
	cfg.Jobs = []config.Job{job}
	return e.Sync(ctx, cfg, SyncOptions{Mode: ModeImport, DryRun: opts.DryRun})
}
