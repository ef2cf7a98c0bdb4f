package main

import (
	"context"
	"fmt"

	"chronotask/internal/config"
	"chronotask/internal/repository/sqlite"
)

// Environment represents the current environment
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// StoreFactory creates store instances based on environment
type StoreFactory struct {
	env Environment
}

// NewStoreFactory creates a new store factory for the given environment
func NewStoreFactory(env Environment) *StoreFactory {
	return &StoreFactory{env: env}
}

// CreateStore creates a store instance based on the current environment
func (sf *StoreFactory) CreateStore(ctx context.Context, cfg *config.Config) (*sqlite.Store, error) {
	switch sf.env {
	case Development:
		return sf.createDevelopmentStore(ctx, cfg)
	case Testing:
		return config.CreateTestStore(ctx)
	default:
		return config.CreateStore(ctx, cfg)
	}
}

// createDevelopmentStore keeps the database in the working directory
func (sf *StoreFactory) createDevelopmentStore(ctx context.Context, cfg *config.Config) (*sqlite.Store, error) {
	store, err := sqlite.New(ctx, cfg.Database.Filename, sqlite.WithQueryTimeout(cfg.GetQueryTimeout()))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize development database: %w", err)
	}
	return store, nil
}

// getEnvironment maps the configured environment name
func getEnvironment(cfg *config.Config) Environment {
	switch Environment(cfg.Application.Env) {
	case Development:
		return Development
	case Testing:
		return Testing
	default:
		return Production
	}
}
