package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/lib/pq"
)

const defaultPingTimeout = 5 * time.Second

// Postgres stores credentials in a remote database.
type Postgres struct {
	DSN         string
	PingTimeout time.Duration
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) Remote() bool { return true }

func (p *Postgres) Open(ctx context.Context, log waLog.Logger) (*sqlstore.Container, error) {
	db, err := sql.Open("postgres", p.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	timeout := p.PingTimeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	container := sqlstore.NewWithDB(db, "postgres", log)
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("upgrade session store: %w", err)
	}
	return container, nil
}
