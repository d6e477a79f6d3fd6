package engine

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/bianoble/vaultsync/internal/csvio"
	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

// ExportEngine writes vault contents as CSV.
type ExportEngine struct {
	Store     store.Store
	Delimiter string // path delimiter
	Comma     string // CSV delimiter
}

// ExportPermissions writes the permission matrix of the current vault: one
// row per object and right, one column per role, "x" where granted. It
// returns the number of rows written.
func (e *ExportEngine) ExportPermissions(ctx context.Context, w io.Writer) (int, error) {
	pl, ok := e.Store.(store.PermissionLister)
	if !ok {
		return 0, &verrors.UnsupportedError{Backend: e.Store.Name(), Capability: "permissions"}
	}
	perms, err := pl.Permissions(ctx)
	if err != nil {
		return 0, err
	}

	names := make(map[string]string)
	var columns []string
	if rm, ok := e.Store.(store.RoleManager); ok {
		roles, err := rm.Roles(ctx)
		if err != nil {
			return 0, err
		}
		for _, r := range roles {
			names[r.ID] = r.Name
		}
	}
	seen := make(map[string]bool)
	for _, p := range perms {
		for _, id := range p.Roles {
			n := roleName(names, id)
			if !seen[n] {
				seen[n] = true
				columns = append(columns, n)
			}
		}
	}
	sort.Strings(columns)

	sort.SliceStable(perms, func(i, j int) bool {
		a, b := perms[i], perms[j]
		if ka, kb := a.Path.Join(e.delim()), b.Path.Join(e.delim()); ka != kb {
			return ka < kb
		}
		return rightIndex(a.Right) < rightIndex(b.Right)
	})

	header := append([]string{"path", "object_id", "right", "inherited"}, columns...)
	cw, err := csvio.NewWriter(w, e.Comma, header)
	if err != nil {
		return 0, err
	}
	for _, p := range perms {
		granted := make(map[string]bool, len(p.Roles))
		for _, id := range p.Roles {
			granted[roleName(names, id)] = true
		}
		row := []string{p.Path.Join(e.delim()), p.ObjectID, string(p.Right), strconv.FormatBool(p.Inherited)}
		for _, c := range columns {
			cell := ""
			if granted[c] {
				cell = "x"
			}
			row = append(row, cell)
		}
		if err := cw.Write(row...); err != nil {
			return 0, err
		}
	}
	if err := cw.Flush(); err != nil {
		return 0, fmt.Errorf("writing permission matrix: %w", err)
	}
	return len(perms), nil
}

// ExportOptions selects what ExportEntries writes.
type ExportOptions struct {
	Root pathkey.PathKey

	// Folders includes folder rows.
	Folders bool

	// Passwords includes the password column.
	Passwords bool
}

// ExportEntries writes every object under opts.Root, sorted by path.
func (e *ExportEngine) ExportEntries(ctx context.Context, w io.Writer, opts ExportOptions) (int, error) {
	scope := store.LeavesOnly(opts.Root)
	if opts.Folders {
		scope = store.Scope{Root: opts.Root}
	}
	objs, err := e.Store.List(ctx, scope)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(objs, func(i, j int) bool {
		return objs[i].Path().Join(e.delim()) < objs[j].Path().Join(e.delim())
	})

	header := []string{"path", "name", "type", "host", "port", "username", "domain", "url", "description", "id", "created"}
	if opts.Passwords {
		header = append(header, "password")
	}
	cw, err := csvio.NewWriter(w, e.Comma, header)
	if err != nil {
		return 0, err
	}
	for _, o := range objs {
		port := ""
		if o.Fields.Port != 0 {
			port = strconv.Itoa(o.Fields.Port)
		}
		created := ""
		if !o.CreatedAt.IsZero() {
			created = o.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
		}
		row := []string{
			o.Parent.Join(e.delim()), o.Name, string(o.Type), o.Fields.Host, port,
			o.Fields.Username, o.Fields.Domain, o.Fields.URL, o.Fields.Description, o.ID, created,
		}
		if opts.Passwords {
			row = append(row, o.Fields.Password)
		}
		if err := cw.Write(row...); err != nil {
			return 0, err
		}
	}
	if err := cw.Flush(); err != nil {
		return 0, fmt.Errorf("writing entries: %w", err)
	}
	return len(objs), nil
}

func (e *ExportEngine) delim() string {
	if e.Delimiter == "" {
		return pathkey.DefaultDelimiter
	}
	return e.Delimiter
}

func roleName(names map[string]string, id string) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}

func rightIndex(r entry.Right) int {
	for i, x := range entry.Rights {
		if x == r {
			return i
		}
	}
	return len(entry.Rights)
}
