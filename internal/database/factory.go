package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/bargom/hivemind/internal/database/mongodb"
	"github.com/bargom/hivemind/internal/workflow/repository"
)

// Connection is an open storage backend.
type Connection struct {
	Type  DatabaseType
	Store repository.Store

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// Ping verifies the backend is reachable.
func (c *Connection) Ping(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Close releases the backend.
func (c *Connection) Close(ctx context.Context) error {
	if c.close == nil {
		return nil
	}
	return c.close(ctx)
}

// Open connects to the configured backend and prepares its schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Type {
	case DatabaseTypeMemory:
		store := repository.NewMemoryStore()
		return &Connection{Type: cfg.Type, Store: store}, nil

	case DatabaseTypeSQLite:
		db, err := OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return openSQL(ctx, cfg.Type, db, repository.DialectSQLite)

	case DatabaseTypePostgres:
		db, err := ConnectPostgres(cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return openSQL(ctx, cfg.Type, db, repository.DialectPostgres)

	case DatabaseTypeMongoDB:
		client, err := mongodb.New(ctx, cfg.MongoDB, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to mongodb: %w", err)
		}
		store := repository.NewMongoStore(client.WorkflowCollection())
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		return &Connection{
			Type:  cfg.Type,
			Store: store,
			ping:  client.Ping,
			close: client.Close,
		}, nil
	}
	return nil, fmt.Errorf("database: unknown type %q", cfg.Type)
}

func openSQL(ctx context.Context, typ DatabaseType, db *sql.DB, dialect repository.Dialect) (*Connection, error) {
	store := repository.NewSQLStore(db, dialect)
	if err := store.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &Connection{
		Type:  typ,
		Store: store,
		ping:  db.PingContext,
		close: store.Close,
	}, nil
}
