// Package httpstore talks to a vault server over its JSON REST API.
package httpstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-version"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/store"
)

const backendName = "http"

// Config configures a Client.
type Config struct {
	URL        string
	AppKey     string
	AppSecret  string
	MinVersion string
	Insecure   bool
	Timeout    time.Duration

	// CaseSensitive controls the local scope check on listings.
	CaseSensitive bool

	// HTTPClient replaces the default client, mainly for tests.
	HTTPClient *http.Client
}

// Client is an authenticated session against a vault server.
type Client struct {
	base  *url.URL
	http  *http.Client
	cmp   *pathkey.Comparer
	token string
}

var (
	_ store.Store            = (*Client)(nil)
	_ store.VaultManager     = (*Client)(nil)
	_ store.RoleManager      = (*Client)(nil)
	_ store.PermissionLister = (*Client)(nil)
)

// Connect logs in and checks the server version against cfg.MinVersion.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.URL)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		transport := &http.Transport{TLSClientConfig: &tls.Config{}}
		if cfg.Insecure {
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
		hc = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}

	c := &Client{base: base, http: hc, cmp: pathkey.NewComparer(cfg.CaseSensitive)}

	var login struct {
		Token string `json:"token"`
	}
	body := map[string]string{"app_key": cfg.AppKey, "app_secret": cfg.AppSecret}
	if err := c.do(ctx, "login", http.MethodPost, "/api/v1/login", body, &login); err != nil {
		return nil, err
	}
	if login.Token == "" {
		return nil, &verrors.BackendError{Backend: backendName, Operation: "login", Err: errors.New("empty token")}
	}
	c.token = login.Token

	if cfg.MinVersion != "" {
		if err := c.checkVersion(ctx, cfg.MinVersion); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ServerVersion returns the version the server reports.
func (c *Client) ServerVersion(ctx context.Context) (*version.Version, error) {
	var info struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, "server info", http.MethodGet, "/api/v1/server/info", nil, &info); err != nil {
		return nil, err
	}
	v, err := version.NewVersion(info.Version)
	if err != nil {
		return nil, &verrors.BackendError{Backend: backendName, Operation: "server info", Err: fmt.Errorf("parsing server version %q: %w", info.Version, err)}
	}
	return v, nil
}

func (c *Client) checkVersion(ctx context.Context, minimum string) error {
	constraint, err := version.NewConstraint(">= " + minimum)
	if err != nil {
		return fmt.Errorf("invalid min_version %q: %w", minimum, err)
	}
	v, err := c.ServerVersion(ctx)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return &verrors.BackendError{
			Backend:   backendName,
			Operation: "server info",
			Err:       fmt.Errorf("server version %s is older than required %s", v, minimum),
		}
	}
	return nil
}

// do sends one JSON request. 404 maps to NotFoundError, 409 to
// CreateConflictError, anything else outside 2xx to BackendError.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	u := *c.base
	p, rawQuery, _ := strings.Cut(path, "?")
	u.Path += p
	u.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &verrors.BackendError{Backend: backendName, Operation: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &verrors.BackendError{
			Backend:    backendName,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(string(msg))),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &verrors.BackendError{Backend: backendName, Operation: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func statusCode(err error) int {
	var be *verrors.BackendError
	if errors.As(err, &be) {
		return be.StatusCode
	}
	return 0
}

// Name implements store.Store.
func (c *Client) Name() string { return backendName }

// Close logs out. Errors are ignored, the token expires on its own.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.do(ctx, "logout", http.MethodPost, "/api/v1/logout", nil, nil)
	return nil
}

type entryDTO struct {
	ID        string       `json:"id,omitempty"`
	Name      string       `json:"name"`
	Parent    []string     `json:"parent"`
	Type      string       `json:"type"`
	Fields    entry.Fields `json:"fields"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

func (d entryDTO) object() entry.Object {
	return entry.Object{
		ID:        d.ID,
		Name:      d.Name,
		Parent:    pathkey.PathKey(d.Parent).Child(),
		Type:      entry.Type(d.Type),
		Fields:    d.Fields,
		CreatedAt: d.CreatedAt,
	}
}

// List implements store.Store. The server filters by kind and root; the
// result is checked again locally.
func (c *Client) List(ctx context.Context, scope store.Scope) ([]entry.Object, error) {
	q := url.Values{}
	if scope.Kind != nil {
		q.Set("kind", scope.Kind.String())
	}
	if !scope.Root.IsRoot() {
		root, _ := json.Marshal([]string(scope.Root))
		q.Set("root", string(root))
	}
	path := "/api/v1/entries"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var dtos []entryDTO
	if err := c.do(ctx, "list", http.MethodGet, path, nil, &dtos); err != nil {
		return nil, err
	}

	out := make([]entry.Object, 0, len(dtos))
	for _, d := range dtos {
		o := d.object()
		if store.InScope(c.cmp, o, scope) {
			out = append(out, o)
		}
	}
	return out, nil
}

// Create implements store.Store.
func (c *Client) Create(ctx context.Context, spec store.CreateSpec) (entry.Object, error) {
	in := entryDTO{
		Name:   spec.Name,
		Parent: spec.Parent.Child(),
		Type:   string(spec.Type),
		Fields: spec.Fields,
	}
	var out entryDTO
	err := c.do(ctx, "create", http.MethodPost, "/api/v1/entries", in, &out)
	if statusCode(err) == http.StatusConflict {
		return entry.Object{}, &verrors.CreateConflictError{Name: spec.Name, Parent: spec.Parent.String(), Err: err}
	}
	if err != nil {
		return entry.Object{}, err
	}
	return out.object(), nil
}

// Update implements store.Store.
func (c *Client) Update(ctx context.Context, id string, fields entry.Fields) error {
	err := c.do(ctx, "update", http.MethodPatch, "/api/v1/entries/"+url.PathEscape(id), map[string]any{"fields": fields}, nil)
	if statusCode(err) == http.StatusNotFound {
		return &verrors.NotFoundError{Kind: "entry", Name: id}
	}
	return err
}

// Delete implements store.Store.
func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.do(ctx, "delete", http.MethodDelete, "/api/v1/entries/"+url.PathEscape(id), nil, nil)
	if statusCode(err) == http.StatusNotFound {
		return &verrors.NotFoundError{Kind: "entry", Name: id}
	}
	return err
}

type vaultDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AllowOffline bool   `json:"allow_offline"`
}

func (d vaultDTO) vault() entry.Vault {
	return entry.Vault{ID: d.ID, Name: d.Name, AllowOffline: d.AllowOffline}
}

// Vaults implements store.VaultManager.
func (c *Client) Vaults(ctx context.Context) ([]entry.Vault, error) {
	var dtos []vaultDTO
	if err := c.do(ctx, "list vaults", http.MethodGet, "/api/v1/vaults", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]entry.Vault, len(dtos))
	for i, d := range dtos {
		out[i] = d.vault()
	}
	return out, nil
}

// CurrentVault implements store.VaultManager.
func (c *Client) CurrentVault(ctx context.Context) (entry.Vault, error) {
	var d vaultDTO
	if err := c.do(ctx, "current vault", http.MethodGet, "/api/v1/session/vault", nil, &d); err != nil {
		return entry.Vault{}, err
	}
	return d.vault(), nil
}

// SelectVault implements store.VaultManager. The server applies the switch
// asynchronously.
func (c *Client) SelectVault(ctx context.Context, id string) error {
	err := c.do(ctx, "select vault", http.MethodPut, "/api/v1/session/vault", map[string]string{"id": id}, nil)
	if statusCode(err) == http.StatusNotFound {
		return &verrors.NotFoundError{Kind: "vault", Name: id}
	}
	return err
}

// SetOfflineMode implements store.VaultManager.
func (c *Client) SetOfflineMode(ctx context.Context, id string, allow bool) error {
	err := c.do(ctx, "set offline mode", http.MethodPut, "/api/v1/vaults/"+url.PathEscape(id)+"/offline", map[string]bool{"allow": allow}, nil)
	if statusCode(err) == http.StatusNotFound {
		return &verrors.NotFoundError{Kind: "vault", Name: id}
	}
	return err
}

// Roles implements store.RoleManager.
func (c *Client) Roles(ctx context.Context) ([]entry.Role, error) {
	var dtos []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.do(ctx, "list roles", http.MethodGet, "/api/v1/roles", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]entry.Role, len(dtos))
	for i, d := range dtos {
		out[i] = entry.Role{ID: d.ID, Name: d.Name, Description: d.Description}
	}
	return out, nil
}

// RenameRole implements store.RoleManager.
func (c *Client) RenameRole(ctx context.Context, id, name string) error {
	err := c.do(ctx, "rename role", http.MethodPatch, "/api/v1/roles/"+url.PathEscape(id), map[string]string{"name": name}, nil)
	switch statusCode(err) {
	case http.StatusNotFound:
		return &verrors.NotFoundError{Kind: "role", Name: id}
	case http.StatusConflict:
		return &verrors.CreateConflictError{Name: name, Parent: "roles", Err: err}
	}
	return err
}

// Permissions implements store.PermissionLister.
func (c *Client) Permissions(ctx context.Context) ([]entry.Permission, error) {
	var dtos []struct {
		ObjectID  string   `json:"object_id"`
		Path      []string `json:"path"`
		Right     string   `json:"right"`
		Roles     []string `json:"roles"`
		Inherited bool     `json:"inherited"`
	}
	if err := c.do(ctx, "list permissions", http.MethodGet, "/api/v1/permissions", nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]entry.Permission, len(dtos))
	for i, d := range dtos {
		out[i] = entry.Permission{
			ObjectID:  d.ObjectID,
			Path:      pathkey.PathKey(d.Path).Child(),
			Right:     entry.Right(d.Right),
			Roles:     d.Roles,
			Inherited: d.Inherited,
		}
	}
	return out, nil
}
