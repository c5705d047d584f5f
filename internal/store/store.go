// Package store selects the persistence collaborator from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/Live/internal/config"
	"github.com/dkeye/Live/internal/core"
	"github.com/dkeye/Live/internal/store/memory"
	"github.com/dkeye/Live/internal/store/sqlite"
)

var (
	_ core.History = (*memory.Store)(nil)
	_ core.History = (*sqlite.Store)(nil)
)

func Open(ctx context.Context, cfg config.Store) (core.Store, error) {
	switch cfg.Driver {
	case "memory", "":
		return memory.New(), nil
	case "sqlite":
		st, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
