package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/materialize"
	"github.com/bianoble/vaultsync/internal/metrics"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/probe"
	"github.com/bianoble/vaultsync/internal/reconcile"
	"github.com/bianoble/vaultsync/internal/source"
	"github.com/bianoble/vaultsync/internal/store"
	"github.com/bianoble/vaultsync/internal/target"
	"github.com/bianoble/vaultsync/internal/transform"
)

// SyncEngine reconciles each job's inventory with its destination folder.
type SyncEngine struct {
	Store    store.Store
	Registry *source.Registry
	Types    *target.TypeMap

	// Prober builds the reachability check for a job. Nil uses TCP.
	Prober func(p config.Probe) probe.Prober

	// Metrics is optional.
	Metrics *metrics.Recorder

	// Now defaults to time.Now.
	Now func() time.Time
}

// SyncOptions configures a run.
type SyncOptions struct {
	Mode   Mode
	DryRun bool

	// Jobs restricts the run to the named jobs. Empty means all.
	Jobs []string
}

// Sync runs every selected job in order. Job and item errors are recorded
// in the result; the returned error is only set when the run could not
// start at all.
func (e *SyncEngine) Sync(ctx context.Context, cfg config.Config, opts SyncOptions) (*SyncResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModeSync
	}
	jobs, err := selectJobs(cfg, opts.Jobs)
	if err != nil {
		return nil, err
	}
	if e.Types == nil {
		if e.Types, err = target.NewTypeMap(cfg.TypeDefinitions); err != nil {
			return nil, err
		}
	}

	result := &SyncResult{Mode: opts.Mode, DryRun: opts.DryRun}
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Jobs = append(result.Jobs, e.RunJob(ctx, cfg, job, opts.Mode, opts.DryRun))
	}
	return result, nil
}

func selectJobs(cfg config.Config, names []string) ([]config.Job, error) {
	if len(names) == 0 {
		return cfg.Jobs, nil
	}
	var out []config.Job
	for _, n := range names {
		j := cfg.FindJob(n)
		if j == nil {
			return nil, fmt.Errorf("job '%s' not found in config", n)
		}
		out = append(out, *j)
	}
	return out, nil
}

func (e *SyncEngine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// RunJob runs one job: switch vault, enumerate and normalize the source,
// list the destination, classify, then apply updates and deletes followed
// by the creates for missing items.
func (e *SyncEngine) RunJob(ctx context.Context, cfg config.Config, job config.Job, mode Mode, dryRun bool) JobResult {
	start := e.now()
	ctx = logging.WithJob(ctx, job.Name)
	log := logging.FromContext(ctx)

	res := JobResult{Job: job.Name, Destination: job.Destination, DryRun: dryRun}
	rc, err := e.runJob(ctx, cfg, job, mode, dryRun, &res)
	if rc != nil {
		res.Actions = rc.Applier.Performed
		res.Tally = reconcile.Count(res.Actions)
	}
	res.Err = err
	res.Duration = e.now().Sub(start)

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("mode", string(mode)).
		Bool("dry_run", dryRun).
		Int("matched", res.Matched).
		Int("folders", res.Tally.Folders).
		Int("created", res.Tally.Created).
		Int("updated", res.Tally.Updated).
		Int("deleted", res.Tally.Deleted).
		Int("skipped", len(res.Skipped)).
		Int("failed", len(res.Failed)).
		Dur("took", res.Duration).
		Msg("job finished")

	e.record(res)
	return res
}

func (e *SyncEngine) record(res JobResult) {
	if e.Metrics == nil {
		return
	}
	for _, a := range res.Actions {
		e.Metrics.Action(res.Job, string(a.Op), string(a.Reason), res.DryRun)
	}
	e.Metrics.Items(res.Job, "matched", res.Matched)
	e.Metrics.Items(res.Job, "skipped", len(res.Skipped))
	e.Metrics.Items(res.Job, "failed", len(res.Failed))
	e.Metrics.Finished(res.Job, res.Duration, res.Err == nil, e.now())
}

func (e *SyncEngine) runJob(ctx context.Context, cfg config.Config, job config.Job, mode Mode, dryRun bool, res *JobResult) (*materialize.RunContext, error) {
	log := logging.FromContext(ctx)
	delim := cfg.Path.Delimiter
	if delim == "" {
		delim = pathkey.DefaultDelimiter
	}
	cmp := pathkey.NewComparer(cfg.Path.IsCaseSensitive())
	dest := pathkey.Split(job.Destination, delim)

	if job.Vault != "" {
		ve := &VaultEngine{Store: e.Store, Ambiguity: cfg.Ambiguity, Wait: cfg.Backend.VaultWait, Interval: cfg.Backend.VaultInterval}
		v, err := ve.Use(ctx, job.Vault)
		if err != nil {
			return nil, fmt.Errorf("selecting vault %q: %w", job.Vault, err)
		}
		res.Vault = v.Name
	}

	typ, err := e.Types.ResolveJob(job)
	if err != nil {
		return nil, err
	}
	templates, err := transform.Compile(job.Fields)
	if err != nil {
		return nil, fmt.Errorf("job fields: %w", err)
	}

	inv, err := e.Registry.Get(job.Source.Type)
	if err != nil {
		return nil, err
	}
	items, err := inv.Enumerate(ctx, job.Source)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("items", len(items)).Str("source", job.Source.Type).Msg("source enumerated")

	norm := pathkey.NewNormalizer(job.Root, delim, cfg.Path.IsCaseSensitive())
	data := transform.Data{Job: job.Name, Vars: cfg.Variables}

	var records []reconcile.Record
	for _, it := range items {
		rec, err := buildRecord(norm, templates, data, dest, typ, delim, it)
		if err != nil {
			ie := verrors.ItemError{Job: job.Name, Item: itemName(it), Err: err}
			if verrors.Skipped(err) {
				log.Warn().Err(err).Str("item", ie.Item).Msg("item skipped")
				res.Skipped = append(res.Skipped, ie)
			} else {
				log.Error().Err(err).Str("item", ie.Item).Msg("item failed")
				res.Failed = append(res.Failed, ie)
			}
			continue
		}
		records = append(records, rec)
	}

	objects, err := e.Store.List(ctx, store.LeavesOnly(dest))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dest.Join(delim), err)
	}

	if err := e.reportDuplicateFolders(ctx, cmp, job.Name, dest, delim, res); err != nil {
		return nil, err
	}

	plan := reconcile.Classify(cmp, records, objects)
	res.Matched = len(plan.Matched)
	for _, s := range plan.Skipped {
		res.Skipped = append(res.Skipped, verrors.ItemError{Job: job.Name, Item: s.Record.Path().Join(delim), Err: s.Err})
	}

	rc := materialize.NewRunContext(e.Store, cmp, dryRun, delim)

	for _, a := range plan.Changes(policyFor(mode, job)) {
		if _, err := rc.Applier.Apply(ctx, a); err != nil {
			res.Failed = append(res.Failed, verrors.ItemError{Job: job.Name, Item: a.Path().Join(delim), Err: err})
		}
	}

	if mode == ModePrune {
		return rc, nil
	}

	var prober probe.Prober
	if job.Probe != nil && len(job.Probe.Ports) > 0 {
		prober = e.prober(*job.Probe)
	}

	for _, rec := range plan.Missing {
		if err := ctx.Err(); err != nil {
			return rc, err
		}
		item := rec.Path().Join(delim)

		if prober != nil {
			if err := prober.Probe(ctx, rec.Host); err != nil {
				log.Warn().Err(err).Str("item", item).Msg("item skipped")
				res.Skipped = append(res.Skipped, verrors.ItemError{Job: job.Name, Item: item, Err: err})
				continue
			}
		}

		if !rc.Seeded() {
			if err := rc.Seed(ctx, dest); err != nil {
				return rc, err
			}
		}
		if err := rc.Ensure(ctx, rec.Parent); err != nil {
			res.Failed = append(res.Failed, verrors.ItemError{Job: job.Name, Item: item, Err: err})
			continue
		}
		if _, err := rc.Applier.Apply(ctx, reconcile.CreateAction(rec)); err != nil {
			res.Failed = append(res.Failed, verrors.ItemError{Job: job.Name, Item: item, Err: err})
		}
	}
	return rc, nil
}

// reportDuplicateFolders records every extra copy of a folder at or below
// dest as a skipped item. Extra folders are never deleted: entries are
// filed by path, so their contents cannot be told apart from the kept copy.
func (e *SyncEngine) reportDuplicateFolders(ctx context.Context, cmp *pathkey.Comparer, job string,
	dest pathkey.PathKey, delim string, res *JobResult,
) error {
	scope := dest
	if !dest.IsRoot() {
		scope, _ = dest.Parent()
	}
	listed, err := e.Store.List(ctx, store.FoldersOnly(scope))
	if err != nil {
		return fmt.Errorf("listing folders under %s: %w", dest.Join(delim), err)
	}
	var folders []entry.Object
	for _, f := range listed {
		if cmp.HasPrefix(f.Path(), dest) {
			folders = append(folders, f)
		}
	}

	log := logging.FromContext(ctx)
	for _, g := range reconcile.DuplicateFolders(cmp, folders) {
		path := g.Path().Join(delim)
		for _, o := range g.Extra {
			log.Warn().Str("folder", path).Str("id", o.ID).Str("kept", g.Keep.ID).Msg("duplicate folder")
			res.Skipped = append(res.Skipped, verrors.ItemError{
				Job:  job,
				Item: path,
				Err:  &verrors.AmbiguityError{Kind: "folder", Name: path, Matches: len(g.Extra) + 1},
			})
		}
	}
	return nil
}

func (e *SyncEngine) prober(p config.Probe) probe.Prober {
	if e.Prober != nil {
		return e.Prober(p)
	}
	return &probe.TCP{Ports: p.Ports, Timeout: p.Timeout}
}

func policyFor(mode Mode, job config.Job) reconcile.Policy {
	switch mode {
	case ModePrune:
		return reconcile.Policy{DeleteOrphans: true, PruneDuplicates: true}
	case ModeImport:
		return reconcile.Policy{UpdateChanged: true}
	}
	return reconcile.Policy{
		UpdateChanged:   true,
		DeleteOrphans:   job.DeleteOrphans,
		PruneDuplicates: job.PruneDuplicatesEnabled(),
	}
}

// buildRecord normalizes an inventory item and renders its fields.
func buildRecord(norm *pathkey.Normalizer, templates *transform.FieldTemplates, data transform.Data,
	dest pathkey.PathKey, typ entry.Type, delim string, it source.Record,
) (reconcile.Record, error) {
	if it.Err != nil {
		return reconcile.Record{}, it.Err
	}
	path, leaf, err := norm.Normalize(it.Hierarchy, it.Raw)
	if err != nil {
		return reconcile.Record{}, err
	}

	host := it.Host
	if host == "" && typ != entry.TypeCredential && typ != entry.TypeWebsite {
		host = leaf
	}
	base := it.Fields
	if base.Host == "" {
		base.Host = host
	}
	if base.Port == 0 {
		base.Port = target.DefaultPort(typ)
	}

	data.Name = leaf
	data.Host = host
	data.Path = path.Join(delim)
	data.Attributes = it.Attributes
	fields, err := templates.Render(base, data)
	if err != nil {
		return reconcile.Record{}, err
	}
	if err := entry.Validate(typ, leaf, fields); err != nil {
		return reconcile.Record{}, err
	}

	return reconcile.Record{
		Name:   leaf,
		Parent: dest.Concat(path),
		Host:   host,
		Type:   typ,
		Fields: fields,
		Raw:    it.Raw,
	}, nil
}

func itemName(it source.Record) string {
	if it.Raw != "" {
		return it.Raw
	}
	if len(it.Hierarchy) > 0 {
		return strings.Join(it.Hierarchy, "/")
	}
	return it.Name
}
