// Package reconcile compares normalized source records with the leaf
// objects a store holds in the same scope, and turns the differences into
// store actions.
package reconcile

import (
	"sort"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
)

// Record is one normalized source item. Parent is the full vault path the
// entry belongs under.
type Record struct {
	Name   string
	Parent pathkey.PathKey
	Host   string
	Type   entry.Type
	Fields entry.Fields

	// Raw is the hierarchy string the record came from.
	Raw string
}

// Path returns the record's full vault path.
func (r Record) Path() pathkey.PathKey { return r.Parent.Child(r.Name) }

// Match pairs a record with the object that represents it.
type Match struct {
	Record  Record
	Object  entry.Object
	Changes []string
}

// Skip is a record left alone, with the reason.
type Skip struct {
	Record Record
	Err    error
}

// Plan is the classification of one scope.
type Plan struct {
	Matched    []Match
	Missing    []Record
	Orphaned   []entry.Object
	Duplicates []entry.Object
	Skipped    []Skip
}

// Classify compares records with objects. For every (parent, name) group
// of objects the newest survives; the rest are duplicates. Records that
// repeat an earlier key are skipped with an AmbiguityError.
func Classify(cmp *pathkey.Comparer, records []Record, objects []entry.Object) Plan {
	var plan Plan

	groups, order := groupByKey(cmp, objects)
	survivors := make(map[string]entry.Object, len(groups))
	for _, k := range order {
		keep, dups := Survivor(groups[k])
		survivors[k] = keep
		plan.Duplicates = append(plan.Duplicates, dups...)
	}

	seen := make(map[string]int)
	for _, r := range records {
		k := cmp.ObjectKey(r.Parent, r.Name)
		seen[k]++
		if seen[k] > 1 {
			plan.Skipped = append(plan.Skipped, Skip{
				Record: r,
				Err:    &verrors.AmbiguityError{Kind: "source record", Name: r.Path().String(), Matches: seen[k]},
			})
			continue
		}

		obj, ok := survivors[k]
		if !ok {
			plan.Missing = append(plan.Missing, r)
			continue
		}
		plan.Matched = append(plan.Matched, Match{Record: r, Object: obj, Changes: obj.Fields.Diff(r.Fields)})
	}

	for _, k := range order {
		if seen[k] == 0 {
			plan.Orphaned = append(plan.Orphaned, survivors[k])
		}
	}

	sortByPath(plan.Duplicates)
	sortByPath(plan.Orphaned)
	return plan
}

// FolderGroup is a set of folders sharing one (parent, name) key.
type FolderGroup struct {
	Keep  entry.Object
	Extra []entry.Object
}

// Path returns the path the folders share.
func (g FolderGroup) Path() pathkey.PathKey { return g.Keep.Path() }

// DuplicateFolders returns the groups of folders that share a key, sorted by
// path. Keep is chosen by Survivor.
func DuplicateFolders(cmp *pathkey.Comparer, folders []entry.Object) []FolderGroup {
	groups, order := groupByKey(cmp, folders)
	var out []FolderGroup
	for _, k := range order {
		if len(groups[k]) < 2 {
			continue
		}
		keep, extra := Survivor(groups[k])
		sortByPath(extra)
		out = append(out, FolderGroup{Keep: keep, Extra: extra})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Path().String() < out[j].Path().String()
	})
	return out
}

func groupByKey(cmp *pathkey.Comparer, objects []entry.Object) (map[string][]entry.Object, []string) {
	groups := make(map[string][]entry.Object)
	var order []string
	for _, o := range objects {
		k := cmp.ObjectKey(o.Parent, o.Name)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], o)
	}
	return groups, order
}

// Survivor picks the object to keep from a group sharing one key: newest
// CreatedAt first, then the greatest ID. The others are returned as
// duplicates.
func Survivor(group []entry.Object) (entry.Object, []entry.Object) {
	best := 0
	for i := 1; i < len(group); i++ {
		if newer(group[i], group[best]) {
			best = i
		}
	}
	dups := make([]entry.Object, 0, len(group)-1)
	for i, o := range group {
		if i != best {
			dups = append(dups, o)
		}
	}
	return group[best], dups
}

func newer(a, b entry.Object) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func sortByPath(objs []entry.Object) {
	sort.SliceStable(objs, func(i, j int) bool {
		pi, pj := objs[i].Path().String(), objs[j].Path().String()
		if pi != pj {
			return pi < pj
		}
		return objs[i].ID < objs[j].ID
	})
}

// Policy selects which differences become actions.
type Policy struct {
	UpdateChanged   bool
	DeleteOrphans   bool
	PruneDuplicates bool
}

// Changes returns the update and delete actions the plan calls for under
// policy. Creates are not included; they depend on the probe and folder
// materialization at apply time.
func (p Plan) Changes(policy Policy) []Action {
	var out []Action
	if policy.UpdateChanged {
		for _, m := range p.Matched {
			if len(m.Changes) == 0 {
				continue
			}
			out = append(out, Action{
				Op:      OpUpdate,
				Reason:  ReasonChanged,
				ID:      m.Object.ID,
				Name:    m.Object.Name,
				Parent:  m.Object.Parent,
				Type:    m.Object.Type,
				Fields:  m.Record.Fields,
				Changes: m.Changes,
			})
		}
	}
	if policy.PruneDuplicates {
		for _, o := range p.Duplicates {
			out = append(out, deleteAction(o, ReasonDuplicate))
		}
	}
	if policy.DeleteOrphans {
		for _, o := range p.Orphaned {
			out = append(out, deleteAction(o, ReasonOrphaned))
		}
	}
	return out
}

func deleteAction(o entry.Object, reason Reason) Action {
	return Action{Op: OpDelete, Reason: reason, ID: o.ID, Name: o.Name, Parent: o.Parent, Type: o.Type}
}

// CreateAction returns the create call for a missing record.
func CreateAction(r Record) Action {
	return Action{Op: OpCreate, Reason: ReasonMissing, Name: r.Name, Parent: r.Parent, Type: r.Type, Fields: r.Fields}
}
