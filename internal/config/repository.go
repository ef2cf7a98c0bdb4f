package config

import (
	"context"
	"fmt"
	"os"

	"chronotask/internal/repository/sqlite"
)

// CreateStore opens the SQLite store described by the configuration,
// creating the database directory when needed.
func CreateStore(ctx context.Context, config *Config) (*sqlite.Store, error) {
	dbPath := config.GetDatabasePath()
	if dbPath != ":memory:" {
		if err := os.MkdirAll(config.Database.Dir, os.FileMode(config.Database.DirPermissions)); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := sqlite.New(ctx, dbPath, sqlite.WithQueryTimeout(config.GetQueryTimeout()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

// CreateTestStore creates an in-memory store for testing
func CreateTestStore(ctx context.Context) (*sqlite.Store, error) {
	store, err := sqlite.New(ctx, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize test database: %w", err)
	}
	return store, nil
}
