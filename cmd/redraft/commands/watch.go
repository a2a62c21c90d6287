package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/redraft-dev/redraft/internal/config"
	"github.com/redraft-dev/redraft/internal/printer"
	"github.com/redraft-dev/redraft/internal/store"
	"github.com/redraft-dev/redraft/internal/watch"
)

var watchSessionID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream session progress as checkpoints land",
	Long: `Stream checkpoint events as sessions progress. Watching is strictly
read-only: it never mutates state or triggers stage execution, and any
number of watchers can run alongside an active driver.

With the redis backend this subscribes to the namespace's checkpoint
event channel. With the sqlite backend it polls the session's latest
checkpoint, so --session is required there.

Examples:
  # Watch every session in the namespace (redis backend)
  redraft watch

  # Watch one session
  redraft watch --session 4f1f2f3a-...`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchSessionID, "session", "", "Only show events for this session")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	formatter := watch.NewFormatter(os.Stdout)

	switch cfg.Store.Backend {
	case config.BackendRedis:
		return watchRedis(ctx, cfg, formatter)

	case config.BackendSQLite:
		if watchSessionID == "" {
			return printer.Error(
				"session is required",
				"The sqlite backend has no event channel; watching polls one session.",
				[]string{"redraft watch --session <session-id>"},
			)
		}
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		err = watch.Poll(ctx, st, watchSessionID, 500*time.Millisecond, formatter)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	default:
		return printer.Error("unknown store backend", cfg.Store.Backend, nil)
	}
}

func watchRedis(ctx context.Context, cfg *config.Config, formatter watch.Formatter) error {
	opts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return printer.Error("invalid redis URL", err.Error(), nil)
	}

	rs, err := store.NewRedisStore(opts, cfg.Store.Namespace)
	if err != nil {
		return err
	}
	defer rs.Close()

	if err := rs.Verify(ctx); err != nil {
		return printer.Error("redis not available", err.Error(), nil)
	}

	sub, err := rs.SubscribeCheckpointEvents(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	printer.Step("Watching checkpoint events (Ctrl+C to stop)\n")

	err = watch.Stream(ctx, sub, watchSessionID, formatter, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
