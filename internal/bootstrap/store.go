package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/target/opsconsole/config"
	"github.com/target/opsconsole/internal/adapters/filestore"
	redisadapter "github.com/target/opsconsole/internal/adapters/redis"
	"github.com/target/opsconsole/internal/adapters/sealedstore"
	"github.com/target/opsconsole/internal/data"
	"github.com/target/opsconsole/internal/ports"
)

// StoreConfig contains what OpenStore needs to build the device store.
type StoreConfig struct {
	Store    config.StoreConfig
	Postgres config.DBConfig
	Redis    config.RedisConfig
	Logger   *slog.Logger
}

// OpenStore builds the configured device store, sealed with the configured key.
// The returned closer releases any connection the store holds.
//
//nolint:ireturn // the backing store depends on STORE_BACKEND
func OpenStore(ctx context.Context, cfg StoreConfig) (ports.DeviceStore, io.Closer, error) {
	sealer, err := NewSealer(cfg.Store.EncryptionKey, cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create store sealer: %w", err)
	}

	inner, closer, err := openBackingStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Logger != nil {
		cfg.Logger.DebugContext(ctx, "device store ready", "backend", string(cfg.Store.Backend))
	}
	return sealedstore.New(inner, sealer), closer, nil
}

//nolint:ireturn
func openBackingStore(ctx context.Context, cfg StoreConfig) (ports.DeviceStore, io.Closer, error) {
	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: cfg.Logger}

	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		client, err := ConnectRedis(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis store: %w", err)
		}
		store := redisadapter.NewDeviceStore(client, redisadapter.DeviceStoreOptions{
			Prefix: cfg.Store.KeyPrefix,
			TTL:    cfg.Store.TTL,
		})
		return store, client, nil

	case config.StoreBackendPostgres:
		db, err := ConnectDB(ctx, dbCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres store: %w", err)
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if _, err := RunMigrations(ctx, db, cfg.Logger); err != nil {
				return nil, nil, errors.Join(err, db.Close())
			}
		}
		return data.NewDeviceStateRepo(db, deviceID(cfg.Store.DeviceID)), db, nil

	case config.StoreBackendFile, "":
		return filestore.New(cfg.Store.Path), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func deviceID(configured string) string {
	if configured != "" {
		return configured
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "default"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
