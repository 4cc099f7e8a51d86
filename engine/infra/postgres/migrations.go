package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/compozy/orderetl/pkg/logger"
	"github.com/pressly/goose/v3"

	// Register pgx stdlib driver for database/sql usage in migrations.
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	migrationLockNamespace = "orderetl"
	migrationLockName      = "schema"
	migrationLockTimeout   = 45 * time.Second
)

//go:embed migrations/*.sql
var migrationsFS embed.FS
var gooseMu sync.Mutex

// ApplyMigrations creates or upgrades the order schema. dsn must be
// understood by the pgx stdlib driver. A session advisory lock serializes
// concurrent runners.
func ApplyMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db for migrations: %w", err)
	}
	defer db.Close()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire dedicated connection: %w", err)
	}
	defer conn.Close()
	lockCtx, cancel := context.WithTimeout(ctx, migrationLockTimeout)
	defer cancel()
	if _, err := conn.ExecContext(
		lockCtx,
		"select pg_advisory_lock(hashtext($1), hashtext($2))",
		migrationLockNamespace,
		migrationLockName,
	); err != nil {
		return fmt.Errorf("acquire migration advisory lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(
			context.WithoutCancel(ctx),
			"select pg_advisory_unlock(hashtext($1), hashtext($2))",
			migrationLockNamespace,
			migrationLockName,
		); err != nil {
			logger.FromContext(ctx).Warn("Failed to release migration advisory lock", "error", err)
		}
	}()
	return RunMigrationsForDB(ctx, db)
}

// RunMigrationsForDB applies the embedded migrations on an existing *sql.DB.
func RunMigrationsForDB(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	if version, err := goose.GetDBVersionContext(ctx, db); err == nil {
		logger.FromContext(ctx).Info("Schema up to date", "store_driver", "postgres", "version", version)
	}
	return nil
}
