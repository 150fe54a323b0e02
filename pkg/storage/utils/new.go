package storageutils

import (
	"context"
	"fmt"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/storage/inmemory"
	"github.com/papercomputeco/strata/pkg/storage/postgres"
	"github.com/papercomputeco/strata/pkg/storage/sqlite"
)

type NewBackendOpts struct {
	// ProviderType is one of "inmemory", "sqlite" or "postgres".
	ProviderType string

	// SQLitePath is the database file for the sqlite provider.
	SQLitePath string

	// PostgresDSN is the connection string for the postgres provider.
	PostgresDSN string

	Tier memory.TierName
}

// NewBackend builds the storage backend for one tier.
func NewBackend(ctx context.Context, o *NewBackendOpts) (storage.Backend, error) {
	switch o.ProviderType {
	case "", "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite":
		if o.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite storage requires a database path")
		}
		return sqlite.NewDriver(o.SQLitePath, o.Tier)
	case "postgres":
		if o.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN")
		}
		return postgres.NewDriver(ctx, o.PostgresDSN, o.Tier)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", o.ProviderType)
	}
}
