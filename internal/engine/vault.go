package engine

import (
	"context"
	"time"

	"github.com/bianoble/vaultsync/internal/entry"
	verrors "github.com/bianoble/vaultsync/internal/errors"
	"github.com/bianoble/vaultsync/internal/logging"
	"github.com/bianoble/vaultsync/internal/store"
)

// VaultEngine lists vaults, switches the active one and toggles offline
// mode.
type VaultEngine struct {
	Store     store.Store
	Ambiguity string

	// Wait bounds how long a switch may take to show up; Interval is the
	// polling period.
	Wait     time.Duration
	Interval time.Duration
}

func (e *VaultEngine) manager() (store.VaultManager, error) {
	vm, ok := e.Store.(store.VaultManager)
	if !ok {
		return nil, &verrors.UnsupportedError{Backend: e.Store.Name(), Capability: "vaults"}
	}
	return vm, nil
}

// List returns every vault and the current one.
func (e *VaultEngine) List(ctx context.Context) ([]entry.Vault, entry.Vault, error) {
	vm, err := e.manager()
	if err != nil {
		return nil, entry.Vault{}, err
	}
	vaults, err := vm.Vaults(ctx)
	if err != nil {
		return nil, entry.Vault{}, err
	}
	cur, err := vm.CurrentVault(ctx)
	if err != nil {
		return nil, entry.Vault{}, err
	}
	return vaults, cur, nil
}

// Find resolves ref (an ID or a name) under the ambiguity policy.
func (e *VaultEngine) Find(ctx context.Context, ref string) (entry.Vault, error) {
	vm, err := e.manager()
	if err != nil {
		return entry.Vault{}, err
	}
	vaults, err := vm.Vaults(ctx)
	if err != nil {
		return entry.Vault{}, err
	}
	return pick(logging.FromContext(ctx), "vault", ref, e.Ambiguity, vaults,
		func(v entry.Vault) string { return v.ID },
		func(v entry.Vault) string { return v.Name })
}

// Use makes ref the current vault and waits until the backend reports it.
// It is a no-op when ref is already current.
func (e *VaultEngine) Use(ctx context.Context, ref string) (entry.Vault, error) {
	v, err := e.Find(ctx, ref)
	if err != nil {
		return entry.Vault{}, err
	}
	vm, _ := e.manager()

	cur, err := vm.CurrentVault(ctx)
	if err == nil && cur.ID == v.ID {
		return v, nil
	}

	logging.FromContext(ctx).Info().Str("vault", v.Name).Str("id", v.ID).Msg("switching vault")
	if err := vm.SelectVault(ctx, v.ID); err != nil {
		return entry.Vault{}, err
	}
	if err := WaitForVault(ctx, vm, v.ID, e.Wait, e.Interval); err != nil {
		return entry.Vault{}, err
	}
	return v, nil
}

// SetOffline enables or disables offline mode on vault ref.
func (e *VaultEngine) SetOffline(ctx context.Context, ref string, allow bool) (entry.Vault, error) {
	v, err := e.Find(ctx, ref)
	if err != nil {
		return entry.Vault{}, err
	}
	vm, _ := e.manager()
	if err := vm.SetOfflineMode(ctx, v.ID, allow); err != nil {
		return entry.Vault{}, err
	}
	logging.FromContext(ctx).Info().Str("vault", v.Name).Bool("allow_offline", allow).Msg("offline mode updated")
	v.AllowOffline = allow
	return v, nil
}

// WaitForVault polls vm until its current vault is id. It gives up with a
// WaitTimeoutError after timeout.
func WaitForVault(ctx context.Context, vm store.VaultManager, id string, timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(timeout)

	var got string
	for {
		cur, err := vm.CurrentVault(ctx)
		if err != nil {
			return err
		}
		if cur.ID == id {
			return nil
		}
		got = cur.ID

		if !time.Now().Before(deadline) {
			return &verrors.WaitTimeoutError{What: "current vault", Want: id, Got: got, Timeout: timeout}
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
