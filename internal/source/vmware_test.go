package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bianoble/vaultsync/internal/config"
)

// fakeVCenter serves a datacenter "DC1" with folders vm/Prod/Web and a
// VM at every level.
type fakeVCenter struct {
	mu        sync.Mutex
	loggedOut bool
	recursive bool
}

func (f *fakeVCenter) handler(t *testing.T) http.Handler {
	children := map[string][]vsphereFolder{
		"group-v1": {{Folder: "group-v2", Name: "Prod"}},
		"group-v2": {{Folder: "group-v3", Name: "Web"}},
	}
	vms := map[string][]vsphereVM{
		"group-v1": {{VM: "vm-1", Name: "jump01", PowerState: "POWERED_ON"}},
		"group-v2": {{VM: "vm-2", Name: "db01", PowerState: "POWERED_OFF"}},
		"group-v3": {{VM: "vm-3", Name: "web01", PowerState: "POWERED_ON"}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "administrator@vsphere.local" || p != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode("tok-1")
	})
	mux.HandleFunc("DELETE /api/session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.loggedOut = true
		f.mu.Unlock()
	})
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(sessionHeader) != "tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /api/vcenter/datacenter", auth(func(w http.ResponseWriter, r *http.Request) {
		if n := r.URL.Query().Get("names"); n != "" && n != "DC1" {
			_ = json.NewEncoder(w).Encode([]vsphereDatacenter{})
			return
		}
		_ = json.NewEncoder(w).Encode([]vsphereDatacenter{{Datacenter: "datacenter-1", Name: "DC1"}})
	}))
	mux.HandleFunc("GET /api/vcenter/datacenter/datacenter-1", auth(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(vsphereDatacenterInfo{Name: "DC1", VMFolder: "group-v1"})
	}))
	mux.HandleFunc("GET /api/vcenter/folder", auth(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "VIRTUAL_MACHINE", r.URL.Query().Get("type"))
		out := children[r.URL.Query().Get("parent_folders")]
		if out == nil {
			out = []vsphereFolder{}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	mux.HandleFunc("GET /api/vcenter/vm", auth(func(w http.ResponseWriter, r *http.Request) {
		folder := r.URL.Query().Get("folders")
		out := append([]vsphereVM{}, vms[folder]...)
		f.mu.Lock()
		recursive := f.recursive
		f.mu.Unlock()
		if recursive {
			// Also list everything below folder.
			for _, c := range children[folder] {
				out = append(out, vms[c.Folder]...)
				for _, cc := range children[c.Folder] {
					out = append(out, vms[cc.Folder]...)
				}
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	return mux
}

func vmwareSource(url string) config.Source {
	return config.Source{Type: "vmware", URL: url, Username: "administrator@vsphere.local", Password: "pw"}
}

func TestVMwareEnumerate(t *testing.T) {
	for _, recursive := range []bool{false, true} {
		fake := &fakeVCenter{recursive: recursive}
		srv := httptest.NewServer(fake.handler(t))

		recs, err := (&VMware{Client: srv.Client()}).Enumerate(context.Background(), vmwareSource(srv.URL))
		srv.Close()
		require.NoError(t, err)

		require.Len(t, recs, 3, "recursive=%v", recursive)
		byName := map[string]Record{}
		for _, r := range recs {
			byName[r.Name] = r
		}
		assert.Equal(t, []string{"DC1", "jump01"}, byName["jump01"].Hierarchy)
		assert.Equal(t, []string{"DC1", "Prod", "db01"}, byName["db01"].Hierarchy)
		assert.Equal(t, []string{"DC1", "Prod", "Web", "web01"}, byName["web01"].Hierarchy)
		assert.Equal(t, "DC1/Prod/Web/web01", byName["web01"].Raw)
		assert.Equal(t, "vm-3", byName["web01"].Attr("vm"))
		assert.Equal(t, "POWERED_OFF", byName["db01"].Attr("power_state"))

		fake.mu.Lock()
		assert.True(t, fake.loggedOut)
		fake.mu.Unlock()
	}
}

func TestVMwareEnumerateErrors(t *testing.T) {
	fake := &fakeVCenter{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	src := vmwareSource(srv.URL)
	src.Password = "wrong"
	_, err := (&VMware{Client: srv.Client()}).Enumerate(context.Background(), src)
	var se *SourceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "login", se.Operation)
	assert.Contains(t, err.Error(), "HTTP 401")

	src = vmwareSource(srv.URL)
	src.Datacenter = "DC9"
	_, err = (&VMware{Client: srv.Client()}).Enumerate(context.Background(), src)
	assert.ErrorContains(t, err, `datacenter "DC9" not found`)

	_, err = (&VMware{}).Enumerate(context.Background(), config.Source{})
	assert.ErrorContains(t, err, "url is required")
}
