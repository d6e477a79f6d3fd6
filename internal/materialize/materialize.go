// Package materialize makes sure every folder on a vault path exists
// before an entry is created under it.
package materialize

import (
	"context"
	"fmt"

	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/reconcile"
	"github.com/bianoble/vaultsync/internal/store"
)

// RunContext is the state of one run: the folder-existence cache and the
// applier every mutating call goes through. It is created per run and
// passed explicitly; it is not safe for concurrent use.
type RunContext struct {
	Store   store.Store
	Applier *reconcile.Applier
	Cmp     *pathkey.Comparer

	known  map[string]bool
	seeded bool
}

// NewRunContext returns a RunContext over s. Every create, update and
// delete of the run should go through rc.Applier.
func NewRunContext(s store.Store, cmp *pathkey.Comparer, dryRun bool, delim string) *RunContext {
	return &RunContext{
		Store:   s,
		Applier: &reconcile.Applier{Store: s, DryRun: dryRun, Delimiter: delim},
		Cmp:     cmp,
		known:   make(map[string]bool),
	}
}

// Seed fills the cache from one bulk folder listing, keeping the folders
// on the way down to root and every folder below it.
func (rc *RunContext) Seed(ctx context.Context, root pathkey.PathKey) error {
	folders, err := rc.Store.List(ctx, store.FoldersOnly(nil))
	if err != nil {
		return fmt.Errorf("listing folders: %w", err)
	}
	n := 0
	for _, f := range folders {
		p := f.Path()
		if rc.Cmp.HasPrefix(root, p) || rc.Cmp.HasPrefix(p, root) {
			rc.known[rc.Cmp.Key(p)] = true
			n++
		}
	}
	rc.seeded = true
	logging.FromContext(ctx).Debug().Str("root", root.String()).Int("folders", n).Msg("folder cache seeded")
	return nil
}

// Seeded reports whether Seed has run.
func (rc *RunContext) Seeded() bool { return rc.seeded }

// Exists reports whether path is known to exist, or is planned to in a
// dry run.
func (rc *RunContext) Exists(path pathkey.PathKey) bool {
	return path.IsRoot() || rc.known[rc.Cmp.Key(path)]
}

// Ensure creates every missing folder on path, root to leaf. Each created
// or planned folder enters the cache at once, so a second Ensure on the
// same path issues no creates. The first failure stops the walk and is
// returned; folders created before it stay.
func (rc *RunContext) Ensure(ctx context.Context, path pathkey.PathKey) error {
	for _, prefix := range path.Prefixes() {
		key := rc.Cmp.Key(prefix)
		if rc.known[key] {
			continue
		}
		parent, name := prefix.Parent()
		_, err := rc.Applier.Apply(ctx, reconcile.Action{
			Op:     reconcile.OpCreate,
			Reason: reconcile.ReasonFolder,
			Name:   name,
			Parent: parent,
			Type:   entry.TypeFolder,
		})
		if err != nil {
			return fmt.Errorf("creating folder %s: %w", prefix.Join(rc.Applier.Delimiter), err)
		}
		rc.known[key] = true
	}
	return nil
}
