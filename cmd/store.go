package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadenrich-cli/internal/store"
)

// initStore opens the run-history store configured in cfg and applies
// migrations. The caller owns Close.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "", "sqlite":
		st, err = store.NewSQLite(cfg.Store.DSN)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DSN, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q (want sqlite or postgres)", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: open")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "store: migrate")
	}
	return st, nil
}
