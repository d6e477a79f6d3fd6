package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/secret"
)

// Attributes requested for every computer.
var adAttributes = []string{"name", "dNSHostName", "canonicalName", "distinguishedName", "whenCreated", "operatingSystem"}

// LDAPConn is the part of *ldap.Conn the AD source uses.
type LDAPConn interface {
	Bind(username, password string) error
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
}

// Dialer opens an LDAP connection. The returned func closes it.
type Dialer func(url string, insecure bool) (LDAPConn, func(), error)

// AD enumerates computer accounts from Active Directory.
type AD struct {
	// Dial defaults to ldap.DialURL.
	Dial Dialer
}

func dialLDAP(url string, insecure bool) (LDAPConn, func(), error) {
	conn, err := ldap.DialURL(url, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: insecure})) //nolint:gosec // opt-in via source.insecure
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}

// SearchFilter returns the filter used for src: the configured filter, or
// all computers, restricted to enabled accounts unless include_disabled.
func SearchFilter(src config.Source) string {
	base := AllComputers
	if src.Filter != "" {
		base = Raw(src.Filter)
	}
	if src.IncludeDisabled {
		return base.String()
	}
	return And(base, Enabled).String()
}

func (a *AD) Enumerate(ctx context.Context, src config.Source) ([]Record, error) {
	if src.URL == "" {
		return nil, &SourceError{Source: "ad", Operation: "connect", Err: fmt.Errorf("url is required"), Hint: "e.g. ldaps://dc01.corp.local"}
	}
	password, err := secret.Resolve(src.Password)
	if err != nil {
		return nil, &SourceError{Source: "ad", Operation: "connect", Err: fmt.Errorf("resolving password: %w", err)}
	}

	dial := a.Dial
	if dial == nil {
		dial = dialLDAP
	}
	conn, closeConn, err := dial(src.URL, src.Insecure)
	if err != nil {
		return nil, &SourceError{Source: "ad", Operation: "connect", Err: err, Hint: "check the url and that the domain controller is reachable"}
	}
	defer closeConn()

	if src.Username != "" {
		if err := conn.Bind(src.Username, password); err != nil {
			return nil, &SourceError{Source: "ad", Operation: "bind", Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filter := SearchFilter(src)
	req := ldap.NewSearchRequest(
		src.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		adAttributes,
		nil,
	)
	pageSize := src.PageSize
	if pageSize == 0 {
		pageSize = config.DefaultPageSize
	}
	res, err := conn.SearchWithPaging(req, pageSize)
	if err != nil {
		return nil, &SourceError{Source: "ad", Operation: "search", Err: fmt.Errorf("filter %s: %w", filter, err)}
	}

	logging.FromContext(ctx).Debug().
		Str("base_dn", src.BaseDN).
		Str("filter", filter).
		Int("entries", len(res.Entries)).
		Msg("ldap search complete")

	records := make([]Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		records = append(records, computerRecord(e, src.UseDN))
	}
	return records, nil
}

func computerRecord(e *ldap.Entry, useDN bool) Record {
	attrs := make(map[string]string, len(adAttributes))
	for _, a := range adAttributes {
		if v := e.GetAttributeValue(a); v != "" {
			attrs[a] = v
		}
	}
	dn := e.DN
	if dn == "" {
		dn = attrs["distinguishedName"]
	}

	r := Record{
		Name:       attrs["name"],
		Host:       attrs["dNSHostName"],
		Attributes: attrs,
	}
	if r.Host == "" {
		r.Host = r.Name
	}

	canonical := attrs["canonicalName"]
	if useDN || canonical == "" {
		r.Raw = dn
		r.Hierarchy, r.Err = pathkey.ParseDN(dn)
	} else {
		r.Raw = canonical
		r.Hierarchy = pathkey.ParseCanonical(canonical)
	}
	if r.Name == "" && len(r.Hierarchy) > 0 {
		r.Name = r.Hierarchy[len(r.Hierarchy)-1]
	}
	if r.Err == nil && strings.TrimSpace(r.Name) == "" {
		r.Err = fmt.Errorf("entry %q has no name", dn)
	}
	return r
}
