package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/pkg/logger"
)

const (
	memoryPath         = ":memory:"
	defaultBusyTimeout = 5 * time.Second
	defaultMaxConns    = 4
)

// Store is the SQLite driver backed by database/sql and modernc.org/sqlite.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// NewStore opens the database, applies connection pragmas and verifies the
// connection.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sqlite: config is required")
	}
	dsn, memory, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	configurePool(db, cfg, memory)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyBusyTimeout(ctx, db, cfg); err != nil {
		db.Close()
		return nil, err
	}
	logger.FromContext(ctx).With(
		"store_driver", "sqlite",
		"path", cfg.Path,
		"in_memory", memory,
	).Info("Store initialized")
	return &Store{db: db, path: cfg.Path}, nil
}

// DB exposes the underlying handle for driver-local usage and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() store.Dialect { return store.DialectSQLite }

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	logger.FromContext(ctx).Debug("SQLite store closed", "path", s.path)
	return nil
}

// WithTransaction executes fn inside a single transaction. A returned error
// or panic rolls back; otherwise the transaction is committed.
func (s *Store) WithTransaction(
	ctx context.Context,
	fn func(ctx context.Context, tx store.Execer) error,
) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.FromContext(ctx).Error("Failed to rollback transaction", "error", rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("sqlite: commit tx: %w", cErr)
		}
	}()
	return fn(ctx, sqlTx{tx: tx})
}

type sqlTx struct {
	tx *sql.Tx
}

func (t sqlTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// buildDSN renders a modernc DSN carrying the connection pragmas and reports
// whether the database lives in memory.
func buildDSN(cfg *Config) (string, bool, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", false, fmt.Errorf("sqlite: path is required")
	}
	params := []string{
		"_pragma=foreign_keys(ON)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout(cfg).Milliseconds()),
	}
	if path == memoryPath {
		return "file::memory:?cache=shared&" + strings.Join(params, "&"), true, nil
	}
	params = append(params, "_pragma=journal_mode(WAL)")
	return "file:" + filepath.ToSlash(path) + "?" + strings.Join(params, "&"), false, nil
}

func busyTimeout(cfg *Config) time.Duration {
	if cfg.BusyTimeout > 0 {
		return cfg.BusyTimeout
	}
	return defaultBusyTimeout
}

// applyBusyTimeout sets the timeout on the current connection; the DSN pragma
// covers connections opened later.
func applyBusyTimeout(ctx context.Context, db *sql.DB, cfg *Config) error {
	stmt := fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout(cfg).Milliseconds())
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	return nil
}

func configurePool(db *sql.DB, cfg *Config, memory bool) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = defaultMaxConns
	}
	if memory {
		// a shared in-memory database lives only while a connection holds it
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
