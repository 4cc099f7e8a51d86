package repo

import (
	"context"
	"fmt"

	"github.com/compozy/orderetl/engine/infra/postgres"
	"github.com/compozy/orderetl/engine/infra/sqlite"
	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/pkg/config"
)

// Provider opens stores for the configured driver. It returns the
// driver-neutral store.Store so callers never see pgx or database/sql types.
type Provider struct {
	cfg *config.DatabaseConfig
}

func NewProvider(cfg *config.DatabaseConfig) *Provider { return &Provider{cfg: cfg} }

// Dialect reports the SQL flavor of the configured driver.
func (p *Provider) Dialect() (store.Dialect, error) {
	if p.cfg == nil {
		return "", fmt.Errorf("repo: database config is required")
	}
	return store.ParseDialect(p.cfg.Driver)
}

// Open acquires a new store. It satisfies store.Opener.
func (p *Provider) Open(ctx context.Context) (store.Store, error) {
	dialect, err := p.Dialect()
	if err != nil {
		return nil, err
	}
	switch dialect {
	case store.DialectSQLite:
		return sqlite.NewStore(ctx, sqliteConfig(p.cfg))
	default:
		return postgres.NewStore(ctx, postgresConfig(p.cfg))
	}
}

// Check opens a store and verifies it answers.
func (p *Provider) Check(ctx context.Context) (err error) {
	s, err := p.Open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.HealthCheck(ctx)
}

// Migrate applies the embedded schema for the configured driver.
func (p *Provider) Migrate(ctx context.Context) error {
	dialect, err := p.Dialect()
	if err != nil {
		return err
	}
	switch dialect {
	case store.DialectSQLite:
		return sqlite.ApplyMigrations(ctx, p.cfg.SQLitePath)
	default:
		return postgres.ApplyMigrations(ctx, postgresConfig(p.cfg).DSN())
	}
}

func postgresConfig(cfg *config.DatabaseConfig) *postgres.Config {
	return &postgres.Config{
		ConnString:      cfg.ConnString,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password.Value(),
		DBName:          cfg.DBName,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnectTimeout:  cfg.ConnectTimeout,
		PingTimeout:     cfg.ConnectTimeout,
	}
}

func sqliteConfig(cfg *config.DatabaseConfig) *sqlite.Config {
	return &sqlite.Config{
		Path:            cfg.SQLitePath,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}
}
