package engine

import (
	"time"

	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/reconcile"
)

// Mode selects what a reconciliation run may do.
type Mode string

const (
	// ModeSync creates, updates and deletes per job policy.
	ModeSync Mode = "sync"
	// ModePrune only deletes duplicates and orphans.
	ModePrune Mode = "prune"
	// ModeImport creates and updates, never deletes.
	ModeImport Mode = "import"
)

// JobResult is the outcome of one job.
type JobResult struct {
	Job         string
	Vault       string
	Destination string
	DryRun      bool

	// Actions lists every store call made, or planned in a dry run, in
	// order. Failed calls are not listed.
	Actions []reconcile.Action

	Matched int
	Tally   reconcile.Tally

	// Skipped items were deliberately left alone (normalization, probe,
	// ambiguity); Failed items hit an error while being written.
	Skipped []verrors.ItemError
	Failed  []verrors.ItemError

	// Err is a job-level failure: the source or store could not be read,
	// or the vault switch timed out. Nothing else ran for the job.
	Err error

	Duration time.Duration
}

// Pending reports whether the job has changes to apply.
func (r JobResult) Pending() bool { return len(r.Actions) > 0 }

// SyncResult holds the outcome of a sync, prune, status or import run.
type SyncResult struct {
	Mode   Mode
	DryRun bool
	Jobs   []JobResult
}

// Summary totals a run.
type Summary struct {
	Jobs      int
	JobErrors int
	Matched   int
	Folders   int
	Created   int
	Updated   int
	Deleted   int
	Skipped   int
	Failed    int
}

// Summary totals every job.
func (r *SyncResult) Summary() Summary {
	s := Summary{Jobs: len(r.Jobs)}
	for _, j := range r.Jobs {
		if j.Err != nil {
			s.JobErrors++
		}
		s.Matched += j.Matched
		s.Folders += j.Tally.Folders
		s.Created += j.Tally.Created
		s.Updated += j.Tally.Updated
		s.Deleted += j.Tally.Deleted
		s.Skipped += len(j.Skipped)
		s.Failed += len(j.Failed)
	}
	return s
}

// Pending reports whether any job has changes to apply.
func (r *SyncResult) Pending() bool {
	for _, j := range r.Jobs {
		if j.Pending() {
			return true
		}
	}
	return false
}

// Errors returns every job-level and failed-item error.
func (r *SyncResult) Errors() []error {
	var out []error
	for _, j := range r.Jobs {
		if j.Err != nil {
			out = append(out, verrors.ItemError{Job: j.Job, Err: j.Err})
		}
		for _, f := range j.Failed {
			out = append(out, f)
		}
	}
	return out
}
