// Package database opens the storage backend that holds workflow instances.
package database

import (
	"fmt"
	"strings"

	"github.com/bargom/hivemind/internal/database/mongodb"
)

// DatabaseType represents the supported storage backends.
type DatabaseType string

const (
	DatabaseTypeMemory   DatabaseType = "memory"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMongoDB  DatabaseType = "mongodb"
)

// IsValid returns true if the database type is known.
func (dt DatabaseType) IsValid() bool {
	switch dt {
	case DatabaseTypeMemory, DatabaseTypeSQLite, DatabaseTypePostgres, DatabaseTypeMongoDB:
		return true
	}
	return false
}

// ParseDatabaseType parses a string into a DatabaseType. Unknown values are
// returned unchanged so Validate can report them.
func ParseDatabaseType(s string) DatabaseType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mongodb", "mongo":
		return DatabaseTypeMongoDB
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres
	case "sqlite", "sqlite3":
		return DatabaseTypeSQLite
	case "memory", "mem", "":
		return DatabaseTypeMemory
	}
	return DatabaseType(s)
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	// DSN overrides the individual fields when set.
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// SQLiteConfig holds SQLite configuration.
type SQLiteConfig struct {
	// Path is a file path or ":memory:".
	Path string `mapstructure:"path"`
}

// Config selects and configures the storage backend.
type Config struct {
	Type     DatabaseType   `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	MongoDB  mongodb.Config `mapstructure:"mongodb"`
}

// DefaultConfig returns a Config using MongoDB on localhost.
func DefaultConfig() Config {
	return Config{
		Type: DatabaseTypeMongoDB,
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "hivemind",
			SSLMode:  "disable",
		},
		SQLite:  SQLiteConfig{Path: "hivemind.db"},
		MongoDB: mongodb.DefaultConfig(),
	}
}

// Validate checks the section for the selected backend.
func (c Config) Validate() error {
	switch c.Type {
	case DatabaseTypeMemory:
		return nil
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("database: sqlite path is required")
		}
		return nil
	case DatabaseTypePostgres:
		if c.Postgres.DSN == "" && c.Postgres.Host == "" {
			return fmt.Errorf("database: postgres host or dsn is required")
		}
		return nil
	case DatabaseTypeMongoDB:
		return c.MongoDB.Validate()
	}
	return fmt.Errorf("database: unknown type %q", c.Type)
}
