package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bianoble/vaultsync/internal/config"
	"github.com/bianoble/vaultsync/internal/pathkey"
	"github.com/bianoble/vaultsync/internal/secret"
	"github.com/bianoble/vaultsync/internal/store"
	"github.com/bianoble/vaultsync/internal/store/filestore"
	"github.com/bianoble/vaultsync/internal/store/httpstore"
	"github.com/bianoble/vaultsync/internal/store/sqlstore"
)

// OpenStore connects to the backend cfg names. Relative file paths resolve
// against baseDir. Secret references in credentials are resolved here.
func OpenStore(ctx context.Context, cfg config.Config, baseDir string) (store.Store, error) {
	b := cfg.Backend
	cmp := pathkey.NewComparer(cfg.Path.IsCaseSensitive())

	switch b.Type {
	case "file":
		p := b.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		s, err := filestore.Open(p, filestore.WithComparer(cmp))
		if err != nil {
			return nil, err
		}
		return s, nil

	case "sql":
		dsn, err := secret.Resolve(b.DSN)
		if err != nil {
			return nil, fmt.Errorf("backend.dsn: %w", err)
		}
		s, err := sqlstore.Open(ctx, b.Driver, dsn, sqlstore.WithComparer(cmp))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil

	case "http":
		key, err := secret.Resolve(b.AppKey)
		if err != nil {
			return nil, fmt.Errorf("backend.app_key: %w", err)
		}
		sec, err := secret.Resolve(b.AppSecret)
		if err != nil {
			return nil, fmt.Errorf("backend.app_secret: %w", err)
		}
		c, err := httpstore.Connect(ctx, httpstore.Config{
			URL:           b.URL,
			AppKey:        key,
			AppSecret:     sec,
			MinVersion:    b.MinVersion,
			Insecure:      b.Insecure,
			Timeout:       b.Timeout,
			CaseSensitive: cfg.Path.IsCaseSensitive(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown backend type '%s' — must be one of: file, sql, http", b.Type)
}
