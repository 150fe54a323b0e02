package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/inmemory"
	"github.com/papercomputeco/strata/pkg/vector/qdrant"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// Target is the sqlite database path for "sqlite-vec" or the host for
	// "qdrant".
	Target string

	Port       int
	APIKey     string
	Collection string
	Dimensions uint
	Logger     *slog.Logger
}

// NewVectorDriver builds the configured vector index. An empty provider
// yields nil: the index is optional.
func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "":
		return nil, nil
	case "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite-vec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
			Logger:     o.Logger,
		})
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:       o.Target,
			Port:       o.Port,
			APIKey:     o.APIKey,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Logger:     o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
