package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/redraft-dev/redraft/internal/agent"
	"github.com/redraft-dev/redraft/internal/config"
	"github.com/redraft-dev/redraft/internal/engine"
	"github.com/redraft-dev/redraft/internal/printer"
	"github.com/redraft-dev/redraft/internal/router"
	"github.com/redraft-dev/redraft/internal/store"
)

// openStore builds the configured checkpoint backend and verifies it is
// reachable and writable before any session work begins. A store that cannot
// durably persist checkpoints makes the suspension protocol unsafe, so this
// fails fast rather than letting sessions start.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)

	switch cfg.Store.Backend {
	case config.BackendRedis:
		opts, parseErr := redis.ParseURL(cfg.Store.RedisURL)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", parseErr)
		}
		st, err = store.NewRedisStore(opts, cfg.Store.Namespace)

	case config.BackendSQLite:
		st, err = store.OpenSQLite(cfg.Store.SQLitePath)

	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	if err := st.Verify(ctx); err != nil {
		st.Close()
		return nil, printer.Error(
			"checkpoint store verification failed",
			fmt.Sprintf("The %s store is not reachable or not writable: %v", cfg.Store.Backend, err),
			[]string{
				"Check that the configured backend is running and the path or URL is correct",
				"The workflow refuses to start without a durable checkpoint store",
			},
		)
	}

	return st, nil
}

// buildEngine assembles the engine from the configuration: verified store,
// routing thresholds, and the default agent slots over the configured
// generation backend.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, store.Store, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	r, err := router.New(cfg.RouterConfig())
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	gen, err := agent.NewGenerator(cfg.Generation.Backend)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	eng, err := engine.New(st, r, agent.DefaultSlots(gen))
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	return eng, st, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"failed to load configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check that %s exists and is valid YAML", configPath)},
		)
	}
	return cfg, nil
}
