package source

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Filter is an LDAP search filter.
type Filter interface {
	String() string
}

type rawFilter string

func (f rawFilter) String() string {
	s := strings.TrimSpace(string(f))
	if !strings.HasPrefix(s, "(") {
		return "(" + s + ")"
	}
	return s
}

// Raw wraps a filter written by hand. Missing outer parentheses are added.
func Raw(s string) Filter { return rawFilter(s) }

type andFilter struct {
	parts []Filter
}

// And matches when every part matches.
func And(filters ...Filter) Filter {
	return andFilter{parts: filters}
}

func (f andFilter) String() string {
	if len(f.parts) == 1 {
		return f.parts[0].String()
	}
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(&" + strings.Join(parts, "") + ")"
}

type orFilter struct {
	parts []Filter
}

// Or matches when any part matches.
func Or(filters ...Filter) Filter {
	return orFilter{parts: filters}
}

func (f orFilter) String() string {
	var parts []string
	for _, p := range f.parts {
		parts = append(parts, p.String())
	}
	return "(|" + strings.Join(parts, "") + ")"
}

type notFilter struct {
	part Filter
}

// Not negates f.
func Not(f Filter) Filter {
	return notFilter{part: f}
}

func (f notFilter) String() string {
	return "(!" + f.part.String() + ")"
}

// Eq matches attr equal to value. value is escaped.
func Eq(attr, value string) Filter {
	return rawFilter("(" + attr + "=" + ldap.EscapeFilter(value) + ")")
}

// Present matches entries carrying attr.
func Present(attr string) Filter {
	return rawFilter("(" + attr + "=*)")
}

// BitSet matches entries whose integer attr has every bit of mask set.
func BitSet(attr string, mask int) Filter {
	return rawFilter(fmt.Sprintf("(%s:%s:=%d)", attr, matchingRuleBitAnd, mask))
}

const (
	matchingRuleBitAnd = "1.2.840.113556.1.4.803"
	uacAccountDisable  = 2
)

// AllComputers matches computer accounts.
var AllComputers = Eq("objectCategory", "computer")

// Enabled excludes disabled accounts.
var Enabled = Not(BitSet("userAccountControl", uacAccountDisable))
