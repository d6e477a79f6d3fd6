package source

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/config"
)

type fakeLDAP struct {
	bindUser, bindPass string
	bindErr            error
	req                *ldap.SearchRequest
	pageSize           uint32
	entries            []*ldap.Entry
	closed             bool
}

func (f *fakeLDAP) Bind(u, p string) error {
	f.bindUser, f.bindPass = u, p
	return f.bindErr
}

func (f *fakeLDAP) SearchWithPaging(req *ldap.SearchRequest, size uint32) (*ldap.SearchResult, error) {
	f.req, f.pageSize = req, size
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func (f *fakeLDAP) dialer() Dialer {
	return func(string, bool) (LDAPConn, func(), error) {
		return f, func() { f.closed = true }, nil
	}
}

func TestSearchFilter(t *testing.T) {
	assert.Equal(t,
		"(&(objectCategory=computer)(!(userAccountControl:1.2.840.113556.1.4.803:=2)))",
		SearchFilter(config.Source{}))
	assert.Equal(t, "(objectCategory=computer)", SearchFilter(config.Source{IncludeDisabled: true}))
	assert.Equal(t,
		"(&(operatingSystem=*Server*)(!(userAccountControl:1.2.840.113556.1.4.803:=2)))",
		SearchFilter(config.Source{Filter: "operatingSystem=*Server*"}))
}

func TestFilterBuilders(t *testing.T) {
	f := Or(Eq("cn", "a*b"), Present("dNSHostName"))
	assert.Equal(t, `(|(cn=a\2ab)(dNSHostName=*))`, f.String())
	assert.Equal(t, "(cn=x)", And(Eq("cn", "x")).String())
}

func TestADEnumerate(t *testing.T) {
	t.Setenv("AD_PASSWORD", "s3cret")
	fake := &fakeLDAP{entries: []*ldap.Entry{
		ldap.NewEntry("CN=SRV01,OU=Web,OU=Servers,DC=corp,DC=local", map[string][]string{
			"name":          {"SRV01"},
			"dNSHostName":   {"srv01.corp.local"},
			"canonicalName": {"corp.local/Servers/Web/SRV01"},
		}),
		ldap.NewEntry("CN=SRV02,OU=Servers,DC=corp,DC=local", map[string][]string{
			"name": {"SRV02"},
		}),
	}}

	src := config.Source{
		Type: "ad", URL: "ldaps://dc01.corp.local", Username: "svc-sync@corp.local",
		Password: "env:AD_PASSWORD", BaseDN: "DC=corp,DC=local", PageSize: 200,
	}
	recs, err := (&AD{Dial: fake.dialer()}).Enumerate(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", fake.bindPass)
	assert.Equal(t, uint32(200), fake.pageSize)
	assert.Equal(t, "DC=corp,DC=local", fake.req.BaseDN)
	assert.True(t, fake.closed)

	require.Len(t, recs, 2)
	assert.Equal(t, "SRV01", recs[0].Name)
	assert.Equal(t, "srv01.corp.local", recs[0].Host)
	assert.Equal(t, []string{"corp.local", "Servers", "Web", "SRV01"}, recs[0].Hierarchy)
	assert.Equal(t, "corp.local/Servers/Web/SRV01", recs[0].Raw)

	// No canonicalName: fall back to the DN.
	assert.Equal(t, "SRV02", recs[1].Host)
	assert.Equal(t, []string{"corp.local", "Servers", "SRV02"}, recs[1].Hierarchy)
	assert.NoError(t, recs[1].Err)
}

func TestADEnumerateUseDN(t *testing.T) {
	fake := &fakeLDAP{entries: []*ldap.Entry{
		ldap.NewEntry("CN=SRV01,OU=Web,OU=Servers,DC=corp,DC=local", map[string][]string{
			"name":          {"SRV01"},
			"canonicalName": {"ignored/SRV01"},
		}),
	}}
	recs, err := (&AD{Dial: fake.dialer()}).Enumerate(context.Background(),
		config.Source{URL: "ldap://dc01", UseDN: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{"corp.local", "Servers", "Web", "SRV01"}, recs[0].Hierarchy)
	assert.Empty(t, fake.bindUser, "anonymous when no username")
}

func TestADEnumerateErrors(t *testing.T) {
	_, err := (&AD{}).Enumerate(context.Background(), config.Source{})
	assert.ErrorContains(t, err, "url is required")

	fake := &fakeLDAP{bindErr: errors.New("invalid credentials")}
	_, err = (&AD{Dial: fake.dialer()}).Enumerate(context.Background(),
		config.Source{URL: "ldap://dc01", Username: "u", Password: "p"})
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bind", se.Operation)

	dialErr := func(string, bool) (LDAPConn, func(), error) { return nil, nil, errors.New("refused") }
	_, err = (&AD{Dial: dialErr}).Enumerate(context.Background(), config.Source{URL: "ldap://dc01"})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "connect", se.Operation)
}
