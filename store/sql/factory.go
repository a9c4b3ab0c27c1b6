package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-psd2-sca/core"
	scamigrations "github.com/goliatone/go-psd2-sca/migrations"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// PersistenceConfig satisfies the go-persistence-bun config contract.
type PersistenceConfig struct {
	Driver      string
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c PersistenceConfig) GetDebug() bool            { return c.Debug }
func (c PersistenceConfig) GetDriver() string         { return c.Driver }
func (c PersistenceConfig) GetServer() string         { return c.DSN }
func (c PersistenceConfig) GetOtelIdentifier() string { return "psd2-sca" }
func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

// Open connects to postgres or sqlite, registers the embedded migrations for
// the matching dialect and applies them.
func Open(ctx context.Context, cfg PersistenceConfig) (*persistence.Client, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	var (
		dialect          schema.Dialect
		migrationDialect string
	)
	switch driver {
	case DriverPostgres, "pg", "postgresql":
		driver = DriverPostgres
		dialect = pgdialect.New()
		migrationDialect = scamigrations.DialectPostgres
	case DriverSQLite, "sqlite":
		driver = DriverSQLite
		dialect = sqlitedialect.New()
		migrationDialect = scamigrations.DialectSQLite
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}

	err = scamigrations.RegisterActivitySchema(migrationDialect, func(schema fs.FS) {
		client.RegisterSQLMigrations(schema)
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}

// StoreFactory builds the SQL backed collaborators of core.Service.
type StoreFactory struct {
	db            *bun.DB
	activityStore *ActivityStore
}

func NewStoreFactory(persistenceClient any) (*StoreFactory, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	activityStore, err := NewActivityStore(db)
	if err != nil {
		return nil, err
	}
	return &StoreFactory{db: db, activityStore: activityStore}, nil
}

func (f *StoreFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *StoreFactory) ActivityStore() *ActivityStore {
	if f == nil {
		return nil
	}
	return f.activityStore
}

// CachedActivityStore wraps the activity store with a go-repository-cache
// service whose TTL is ttl; zero keeps the cache default.
func (f *StoreFactory) CachedActivityStore(ttl time.Duration) (*CachedActivityStore, error) {
	if f == nil || f.activityStore == nil {
		return nil, fmt.Errorf("sqlstore: store factory is not configured")
	}
	cacheService, err := NewCacheService(ttl)
	if err != nil {
		return nil, err
	}
	return NewCachedActivityStore(f.activityStore, cacheService)
}

// CachedTokenValidatorFromConfig decorates validator with a cache using the configured
// token.validation_cache_ttl. A zero TTL returns validator unchanged.
func CachedTokenValidatorFromConfig(cfg core.Config, validator core.TokenValidator) (core.TokenValidator, error) {
	if validator == nil {
		return nil, fmt.Errorf("sqlstore: token validator is required")
	}
	ttl := cfg.TokenValidationCacheTTL()
	if ttl <= 0 {
		return validator, nil
	}
	cacheService, err := NewCacheService(ttl)
	if err != nil {
		return nil, err
	}
	return NewCachedTokenValidator(validator, cacheService)
}

func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: new cache service: %w", err)
	}
	return service, nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
