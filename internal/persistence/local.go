package persistence

import (
	"context"
	"fmt"

	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"
)

// Local stores credentials in a sqlite file.
type Local struct {
	Path string
}

func (l *Local) Name() string { return "local" }

func (l *Local) Remote() bool { return false }

func (l *Local) Open(ctx context.Context, log waLog.Logger) (*sqlstore.Container, error) {
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", l.Path),
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}
	return container, nil
}
