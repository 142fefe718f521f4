package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"icdeck/internal/config"
)

// Open returns the fingerprint store selected by storage.backend. Only the
// SQLite store also implements Ledger.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite, "":
		if dir := filepath.Dir(cfg.Storage.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create db dir: %w", err)
			}
		}
		return NewSQLiteStore(cfg.Storage.Path)
	case config.BackendFile:
		return NewFileStore(cfg.Storage.Dir)
	case config.BackendRedis:
		return NewRedisStore(cfg.Storage.RedisURL)
	case config.BackendEtcd:
		return NewEtcdStore(cfg.Storage.Etcd)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
