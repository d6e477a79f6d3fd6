package source

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/secret"
)

const sessionHeader = "vmware-api-session-id"

// VMware enumerates virtual machines through the vSphere Automation REST
// API. Each record's hierarchy is the datacenter followed by the VM folder
// chain, the hidden top-level "vm" folder left out.
type VMware struct {
	// Client defaults to an http.Client honouring source.insecure.
	Client HTTPClient
}

type vsphereDatacenter struct {
	Datacenter string `json:"datacenter"`
	Name       string `json:"name"`
}

type vsphereDatacenterInfo struct {
	Name     string `json:"name"`
	VMFolder string `json:"vm_folder"`
}

type vsphereFolder struct {
	Folder string `json:"folder"`
	Name   string `json:"name"`
}

type vsphereVM struct {
	VM         string `json:"vm"`
	Name       string `json:"name"`
	PowerState string `json:"power_state"`
}

type vsphereSession struct {
	client HTTPClient
	base   string
	token  string
}

func (v *VMware) Enumerate(ctx context.Context, src config.Source) ([]Record, error) {
	if src.URL == "" {
		return nil, &SourceError{Source: "vmware", Operation: "connect", Err: fmt.Errorf("url is required"), Hint: "e.g. https://vcenter.corp.local"}
	}
	password, err := secret.Resolve(src.Password)
	if err != nil {
		return nil, &SourceError{Source: "vmware", Operation: "connect", Err: fmt.Errorf("resolving password: %w", err)}
	}

	client := v.Client
	if client == nil {
		client = &http.Client{
			Timeout: config.DefaultTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: src.Insecure}, //nolint:gosec // opt-in via source.insecure
			},
		}
	}

	s := &vsphereSession{client: client, base: strings.TrimRight(src.URL, "/")}
	if err := s.login(ctx, src.Username, password); err != nil {
		return nil, &SourceError{Source: "vmware", Operation: "login", Err: err}
	}
	defer s.logout()

	dcs, err := s.datacenters(ctx, src.Datacenter)
	if err != nil {
		return nil, &SourceError{Source: "vmware", Operation: "list datacenters", Err: err}
	}
	if len(dcs) == 0 && src.Datacenter != "" {
		return nil, &SourceError{Source: "vmware", Operation: "list datacenters", Err: fmt.Errorf("datacenter %q not found", src.Datacenter)}
	}

	var set vmSet
	for _, dc := range dcs {
		var info vsphereDatacenterInfo
		if err := s.get(ctx, "/api/vcenter/datacenter/"+url.PathEscape(dc.Datacenter), nil, &info); err != nil {
			return nil, &SourceError{Source: "vmware", Operation: "read datacenter", Err: err}
		}
		if err := s.walk(ctx, info.VMFolder, []string{dc.Name}, &set); err != nil {
			return nil, &SourceError{Source: "vmware", Operation: "walk folders", Err: fmt.Errorf("datacenter %s: %w", dc.Name, err)}
		}
	}
	records := set.records()

	logging.FromContext(ctx).Debug().Int("datacenters", len(dcs)).Int("vms", len(records)).Msg("vcenter inventory read")
	return records, nil
}

// vmSet keeps one record per VM id. A VM listed again under a deeper
// folder moves there.
type vmSet struct {
	order []string
	byID  map[string]Record
}

func (v *vmSet) add(id string, r Record) {
	if v.byID == nil {
		v.byID = make(map[string]Record)
	}
	prev, seen := v.byID[id]
	if !seen {
		v.order = append(v.order, id)
	}
	if !seen || len(r.Hierarchy) > len(prev.Hierarchy) {
		v.byID[id] = r
	}
}

func (v *vmSet) records() []Record {
	out := make([]Record, 0, len(v.order))
	for _, id := range v.order {
		out = append(out, v.byID[id])
	}
	return out
}

// walk lists the VMs in folder, then descends depth-first.
func (s *vsphereSession) walk(ctx context.Context, folder string, chain []string, set *vmSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var vms []vsphereVM
	if err := s.get(ctx, "/api/vcenter/vm", url.Values{"folders": {folder}}, &vms); err != nil {
		return err
	}
	for _, vm := range vms {
		hierarchy := append(append([]string(nil), chain...), vm.Name)
		set.add(vm.VM, Record{
			Name:      vm.Name,
			Hierarchy: hierarchy,
			Raw:       strings.Join(hierarchy, "/"),
			Host:      vm.Name,
			Attributes: map[string]string{
				"vm":          vm.VM,
				"power_state": vm.PowerState,
			},
		})
	}

	var children []vsphereFolder
	q := url.Values{"parent_folders": {folder}, "type": {"VIRTUAL_MACHINE"}}
	if err := s.get(ctx, "/api/vcenter/folder", q, &children); err != nil {
		return err
	}
	for _, f := range children {
		if err := s.walk(ctx, f.Folder, append(append([]string(nil), chain...), f.Name), set); err != nil {
			return err
		}
	}
	return nil
}

func (s *vsphereSession) datacenters(ctx context.Context, name string) ([]vsphereDatacenter, error) {
	var q url.Values
	if name != "" {
		q = url.Values{"names": {name}}
	}
	var dcs []vsphereDatacenter
	err := s.get(ctx, "/api/vcenter/datacenter", q, &dcs)
	return dcs, err
}

func (s *vsphereSession) login(ctx context.Context, username, password string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/session", nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(username, password)

	var token string
	if err := s.do(req, &token); err != nil {
		return err
	}
	if token == "" {
		return fmt.Errorf("empty session token")
	}
	s.token = token
	return nil
}

func (s *vsphereSession) logout() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.base+"/api/session", nil)
	if err != nil {
		return
	}
	req.Header.Set(sessionHeader, s.token)
	_ = s.do(req, nil)
}

func (s *vsphereSession) get(ctx context.Context, path string, q url.Values, out any) error {
	u := s.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set(sessionHeader, s.token)
	return s.do(req, out)
}

func (s *vsphereSession) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
