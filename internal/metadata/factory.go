package metadata

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"scodata/internal/infra/persistence/memory"
	"scodata/internal/infra/persistence/postgres"
	"scodata/internal/infra/persistence/redis"
	"scodata/internal/infra/persistence/sqlite"
)

// RedisConfig re-exports the Redis driver configuration.
type RedisConfig = redis.Config

// Config selects and configures a backend. The zero value opens ./scodata.db.
type Config struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
	Redis       RedisConfig
}

// ConfigFromEnv reads the backend selection from the environment.
//
//	SCODATA_METADATA_DRIVER: memory|sqlite|postgres|redis (default sqlite)
//	SCODATA_SQLITE_PATH: path to sqlite file (default ./scodata.db)
//	SCODATA_POSTGRES_DSN: postgres DSN when driver=postgres
//	SCODATA_REDIS_ADDR, SCODATA_REDIS_PASSWORD, SCODATA_REDIS_DB: redis target
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Driver:      Driver(os.Getenv("SCODATA_METADATA_DRIVER")),
		SQLitePath:  os.Getenv("SCODATA_SQLITE_PATH"),
		PostgresDSN: os.Getenv("SCODATA_POSTGRES_DSN"),
		Redis: RedisConfig{
			Addr:     os.Getenv("SCODATA_REDIS_ADDR"),
			Password: os.Getenv("SCODATA_REDIS_PASSWORD"),
		},
	}
	if raw := os.Getenv("SCODATA_REDIS_DB"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SCODATA_REDIS_DB: %w", err)
		}
		cfg.Redis.DB = n
	}
	return cfg, nil
}

// Open constructs the Store described by cfg. Callers own the returned store
// and must Close it at shutdown.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case DriverRedis:
		return redis.NewStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown metadata driver %s", driver)
	}
}

// OpenFromEnv is Open(ctx, ConfigFromEnv()).
func OpenFromEnv(ctx context.Context) (Store, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return Open(ctx, cfg)
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memory.NewStore() }
