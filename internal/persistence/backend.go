// Package persistence selects where whatsmeow keeps session credentials.
// The local backend is a sqlite file in the session directory; the remote
// backend is a Postgres database shared across deployments.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wppgw/internal/config"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// ErrMissingDSN is returned when the remote backend is selected without a connection string.
var ErrMissingDSN = errors.New("DATABASE_URL is not set")

// Backend opens the whatsmeow credential container.
type Backend interface {
	Name() string
	// Remote reports whether credentials leave the host; the adapter emits
	// remote_session_saved after pairing when true.
	Remote() bool
	Open(ctx context.Context, log waLog.Logger) (*sqlstore.Container, error)
}

// New returns the backend named by cfg.Backend. localPath is the sqlite file
// used by the local backend.
func New(cfg config.PersistenceConfig, localPath string) (Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal, "":
		return &Local{Path: localPath}, nil
	case config.BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, ErrMissingDSN
		}
		return &Postgres{DSN: cfg.DatabaseURL}, nil
	default:
		return nil, fmt.Errorf("unknown persistence backend %q", cfg.Backend)
	}
}
