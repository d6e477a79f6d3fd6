// Package entry defines the typed vault object model: folders and leaf
// entries with an explicit field set per entry type.
package entry

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bianoble/vaultsync/internal/pathkey"
)

// Kind separates hierarchy nodes from leaves.
type Kind int

const (
	KindLeaf Kind = iota
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "leaf"
}

// Type is the entry type stored in the vault.
type Type string

const (
	TypeFolder     Type = "folder"
	TypeRDP        Type = "rdp"
	TypeSSH        Type = "ssh"
	TypeVMRC       Type = "vmrc"
	TypeCredential Type = "credential"
	TypeWebsite    Type = "website"
)

var knownTypes = map[Type]bool{
	TypeFolder: true, TypeRDP: true, TypeSSH: true,
	TypeVMRC: true, TypeCredential: true, TypeWebsite: true,
}

// ParseType validates s as an entry type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !knownTypes[t] {
		return "", fmt.Errorf("unknown entry type %q — must be one of: %s", s, strings.Join(TypeNames(), ", "))
	}
	return t, nil
}

// TypeNames lists the known entry types, sorted.
func TypeNames() []string {
	names := make([]string, 0, len(knownTypes))
	for t := range knownTypes {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}

// Kind reports whether the type is a folder or a leaf.
func (t Type) Kind() Kind {
	if t == TypeFolder {
		return KindFolder
	}
	return KindLeaf
}

// Fields is the complete set of attributes an entry may carry. Which ones
// are required depends on the entry type, see Validate.
type Fields struct {
	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	Domain      string `json:"domain,omitempty" yaml:"domain,omitempty"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Diff lists the names of fields set in want that differ from f. Empty
// fields in want are treated as "leave unchanged".
func (f Fields) Diff(want Fields) []string {
	var changed []string
	cmp := func(name, have, w string) {
		if w != "" && have != w {
			changed = append(changed, name)
		}
	}
	cmp("host", f.Host, want.Host)
	if want.Port != 0 && f.Port != want.Port {
		changed = append(changed, "port")
	}
	cmp("username", f.Username, want.Username)
	cmp("password", f.Password, want.Password)
	cmp("domain", f.Domain, want.Domain)
	cmp("url", f.URL, want.URL)
	cmp("description", f.Description, want.Description)
	return changed
}

// Merge returns f with every non-empty field of over applied.
func (f Fields) Merge(over Fields) Fields {
	out := f
	if over.Host != "" {
		out.Host = over.Host
	}
	if over.Port != 0 {
		out.Port = over.Port
	}
	if over.Username != "" {
		out.Username = over.Username
	}
	if over.Password != "" {
		out.Password = over.Password
	}
	if over.Domain != "" {
		out.Domain = over.Domain
	}
	if over.URL != "" {
		out.URL = over.URL
	}
	if over.Description != "" {
		out.Description = over.Description
	}
	return out
}

// Object is a folder or entry as held by a backing store.
type Object struct {
	ID        string
	Name      string
	Parent    pathkey.PathKey
	Type      Type
	Fields    Fields
	CreatedAt time.Time
}

// Kind returns the object's kind.
func (o Object) Kind() Kind { return o.Type.Kind() }

// Path returns the object's full path including its own name.
func (o Object) Path() pathkey.PathKey { return o.Parent.Child(o.Name) }

// Role is a named permission set.
type Role struct {
	ID          string
	Name        string
	Description string
}

// Right is one permission on an object.
type Right string

const (
	RightView         Right = "view"
	RightAdd          Right = "add"
	RightEdit         Right = "edit"
	RightDelete       Right = "delete"
	RightViewPassword Right = "view_password"
)

// Rights lists every right in matrix column order.
var Rights = []Right{RightView, RightAdd, RightEdit, RightDelete, RightViewPassword}

// Permission grants a right on an object to a set of roles.
type Permission struct {
	ObjectID  string
	Path      pathkey.PathKey
	Right     Right
	Roles     []string
	Inherited bool
}

// Vault is a container of entries.
type Vault struct {
	ID           string
	Name         string
	AllowOffline bool
}
