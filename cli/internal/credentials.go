package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	envconfig "github.com/devilmonastery/gatekeeper/internal/config"
	"github.com/devilmonastery/gatekeeper/internal/storage"
)

// credentialsPath returns the credentials file for a context
func credentialsPath(dir, contextName string) string {
	return filepath.Join(dir, fmt.Sprintf("credentials-%s.json", contextName))
}

// databasePath returns the sqlite database shared by all contexts
func databasePath(dir string) string {
	return filepath.Join(dir, "gatekeeper.db")
}

// medium is an opened storage medium and how to release it
type medium struct {
	kv    storage.KeyValue
	file  *storage.File // set for the file backend, which can be watched
	close func() error
}

// openMedium opens the medium configured for durable mode, scoped to the
// context so each context keeps its own tokens
func openMedium(cfg *envconfig.Config, contextName string) (*medium, error) {
	log := slog.Default().With(slog.String("component", "cli-creds"))

	switch cfg.Storage.Backend {
	case storage.BackendFile:
		path := credentialsPath(cfg.Storage.Dir, contextName)
		log.Debug("using file credentials", slog.String("path", path))
		f := storage.NewFile(path)
		return &medium{kv: f, file: f, close: func() error { return nil }}, nil

	case storage.BackendSQLite:
		path := databasePath(cfg.Storage.Dir)
		log.Debug("using sqlite credentials", slog.String("path", path), slog.String("scope", contextName))
		db, err := storage.OpenSQLite(path, contextName)
		if err != nil {
			return nil, err
		}
		return &medium{kv: db, close: db.Close}, nil

	case storage.BackendMemory:
		return &medium{kv: storage.NewMemory(), close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
