package core

import (
	"context"
	"fmt"

	"graphmix/internal/infra/persistence/memory"
	"graphmix/internal/infra/persistence/postgres"
	"graphmix/internal/infra/persistence/sqlite"
	"graphmix/pkg/chem"
)

// StorageDriver identifies a chemical repository backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // ephemeral
	StorageSQLite   StorageDriver = "sqlite"   // embedded file
	StoragePostgres StorageDriver = "postgres" // server
)

// StorageConfig selects a backend; see internal/app for the environment
// variables that fill it.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// OpenChemicalStore builds the configured repository. An empty driver
// means sqlite.
func OpenChemicalStore(ctx context.Context, cfg StorageConfig) (chem.Repository, error) {
	switch cfg.Driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
