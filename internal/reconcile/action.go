package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/bianoble/vaultsync/internal/entry"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

// Op is a mutating store call.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Reason says why an action was planned.
type Reason string

const (
	ReasonFolder    Reason = "folder"
	ReasonMissing   Reason = "missing"
	ReasonChanged   Reason = "changed"
	ReasonDuplicate Reason = "duplicate"
	ReasonOrphaned  Reason = "orphaned"
)

// Action is one store call, planned or performed.
type Action struct {
	Op     Op
	Reason Reason

	// ID is set for update and delete.
	ID string

	Name   string
	Parent pathkey.PathKey
	Type   entry.Type
	Fields entry.Fields

	// Changes lists the fields an update rewrites.
	Changes []string
}

// Path returns the full path of the object the action touches.
func (a Action) Path() pathkey.PathKey { return a.Parent.Child(a.Name) }

// Describe renders the action as the call it stands for.
func (a Action) Describe(delim string) string {
	switch a.Op {
	case OpCreate:
		return fmt.Sprintf("Create(name=%q, parent=%q, type=%s)", a.Name, a.Parent.Join(delim), a.Type)
	case OpUpdate:
		return fmt.Sprintf("Update(id=%q, path=%q, fields=[%s])", a.ID, a.Path().Join(delim), strings.Join(a.Changes, ","))
	case OpDelete:
		return fmt.Sprintf("Delete(id=%q, path=%q, reason=%s)", a.ID, a.Path().Join(delim), a.Reason)
	}
	return string(a.Op)
}

// Applier performs actions against a store. In dry-run mode it only logs
// the call and records it, so both modes yield the same action list.
type Applier struct {
	Store     store.Store
	DryRun    bool
	Delimiter string

	// Performed lists every action in order, planned or executed.
	Performed []Action
}

// Apply performs a. A dry-run create returns a placeholder object carrying
// the requested name and parent.
func (ap *Applier) Apply(ctx context.Context, a Action) (entry.Object, error) {
	log := logging.FromContext(ctx)
	call := a.Describe(ap.Delimiter)

	if ap.DryRun {
		log.Info().Str("call", call).Bool("dry_run", true).Msg("planned")
		ap.Performed = append(ap.Performed, a)
		return entry.Object{Name: a.Name, Parent: a.Parent.Child(), Type: a.Type, Fields: a.Fields}, nil
	}

	var (
		obj entry.Object
		err error
	)
	switch a.Op {
	case OpCreate:
		obj, err = ap.Store.Create(ctx, store.CreateSpec{Name: a.Name, Parent: a.Parent, Type: a.Type, Fields: a.Fields})
	case OpUpdate:
		err = ap.Store.Update(ctx, a.ID, a.Fields)
	case OpDelete:
		err = ap.Store.Delete(ctx, a.ID)
	default:
		err = fmt.Errorf("unknown op %q", a.Op)
	}

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("call", call).Msg(outcome(err))
	if err != nil {
		return entry.Object{}, err
	}
	ap.Performed = append(ap.Performed, a)
	return obj, nil
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "applied"
}

// Tally counts actions by op. Folder creates are counted apart.
type Tally struct {
	Folders int
	Created int
	Updated int
	Deleted int
}

// Count tallies actions.
func Count(actions []Action) Tally {
	var t Tally
	for _, a := range actions {
		switch {
		case a.Op == OpCreate && a.Reason == ReasonFolder:
			t.Folders++
		case a.Op == OpCreate:
			t.Created++
		case a.Op == OpUpdate:
			t.Updated++
		case a.Op == OpDelete:
			t.Deleted++
		}
	}
	return t
}
