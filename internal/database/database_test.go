package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hivemind/internal/workflow/repository"
)

func TestParseDatabaseType(t *testing.T) {
	tests := map[string]DatabaseType{
		"mongo":      DatabaseTypeMongoDB,
		"MongoDB":    DatabaseTypeMongoDB,
		"postgresql": DatabaseTypePostgres,
		"pg":         DatabaseTypePostgres,
		"sqlite3":    DatabaseTypeSQLite,
		"":           DatabaseTypeMemory,
		"oracle":     DatabaseType("oracle"),
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDatabaseType(in), in)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Type = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "unknown type")

	cfg = DefaultConfig()
	cfg.Type = DatabaseTypeSQLite
	cfg.SQLite.Path = ""
	assert.ErrorContains(t, cfg.Validate(), "sqlite path")

	cfg = DefaultConfig()
	cfg.Type = DatabaseTypePostgres
	cfg.Postgres.Host = ""
	assert.ErrorContains(t, cfg.Validate(), "postgres host")

	cfg = DefaultConfig()
	cfg.MongoDB.URI = ""
	assert.ErrorContains(t, cfg.Validate(), "URI is required")
}

func TestOpen_SQLite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = DatabaseTypeSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "hivemind.db")
	ctx := context.Background()

	conn, err := Open(ctx, cfg, nil)
	require.NoError(t, err)
	defer conn.Close(ctx)

	require.NoError(t, conn.Ping(ctx))

	repo := repository.NewStateRepository(conn.Store)
	inst, err := repo.CreateInstance(ctx, repository.CreateParams{
		CommunityID: "c1",
		Route:       repository.Route{Source: "api"},
		Question:    repository.Question{Message: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRunning, inst.Status)
}

func TestOpen_Memory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Type = DatabaseTypeMemory

	conn, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryStore{}, conn.Store)
	assert.NoError(t, conn.Ping(context.Background()))
	assert.NoError(t, conn.Close(context.Background()))
}
