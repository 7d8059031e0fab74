// Command potency inspects and prunes a potency store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/schell/potency"
	"github.com/schell/potency/backend"
	"github.com/schell/potency/backend/sqlite"
	rb "github.com/schell/potency/backend/redis"
	"github.com/schell/potency/codec"
	"github.com/schell/potency/internal/config"
	plog "github.com/schell/potency/log/zap"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "potency",
		Short:         "Inspect and prune memoized results",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "YAML config file [POTENCY_CONFIG]")
	pf.String("backend", "", "sqlite or redis [POTENCY_BACKEND]")
	pf.String("codec", "", "value codec: json, msgpack, cbor, protobuf, raw [POTENCY_CODEC]")
	pf.String("db", "", "sqlite database path [POTENCY_DB]")
	pf.String("redis-addr", "", "redis address [POTENCY_REDIS_ADDR]")
	pf.String("prefix", "", "redis key prefix [POTENCY_PREFIX]")
	pf.String("log-level", "", "debug, info, warn, error [POTENCY_LOG_LEVEL]")

	root.AddCommand(newKeysCmd(), newGetCmd(), newRmCmd(), newStatsCmd())
	return root
}

// env is what every subcommand runs against.
type env struct {
	log   *zap.Logger
	store *potency.Store
}

func (e *env) Close(ctx context.Context) {
	if err := e.store.Close(ctx); err != nil {
		e.log.Warn("close", zap.Error(err))
	}
	_ = e.log.Sync()
}

func open(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Resolve(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var cd codec.Codec
	if cfg.Codec != "" {
		if cd, err = codec.ByName(cfg.Codec); err != nil {
			return nil, err
		}
	}

	ctx := cmd.Context()
	var b backend.Backend
	switch cfg.Backend {
	case "sqlite":
		b, err = sqlite.Open(ctx, sqlite.Config{Path: cfg.SQLite.Path, WAL: cfg.SQLite.WAL, Codec: cd})
	case "redis":
		b, err = rb.New(rb.Config{
			Client:      redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr}),
			Prefix:      cfg.Redis.Prefix,
			CloseClient: true,
			Codec:       cd,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Backend, err)
	}
	log.Debug("backend open", zap.String("backend", cfg.Backend))

	s, err := potency.New(b, potency.Options{Logger: plog.New(log)})
	if err != nil {
		return nil, err
	}
	return &env{log: log, store: s}, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
