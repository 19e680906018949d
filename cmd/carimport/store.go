package main

import (
	"context"
	"log/slog"

	"github.com/rotisserie/eris"

	"github.com/JonMunkholm/carimport/internal/store"
)

// initStore opens the configured database and optionally migrates it.
func initStore(ctx context.Context, migrate bool) (store.Store, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:   cfg.Database.Driver,
		URL:      cfg.Database.URL,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if migrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate")
		}
		slog.Debug("schema migrated", "driver", cfg.Database.Driver)
	}
	return st, nil
}
