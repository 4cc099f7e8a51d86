package store

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
)

// Dialect names the SQL flavor a store speaks.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Placeholder returns the bind parameter format for squirrel builders.
func (d Dialect) Placeholder() squirrel.PlaceholderFormat {
	if d == DialectPostgres {
		return squirrel.Dollar
	}
	return squirrel.Question
}

func ParseDialect(s string) (Dialect, error) {
	switch Dialect(s) {
	case DialectPostgres, DialectSQLite:
		return Dialect(s), nil
	case "":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", s)
	}
}

// Execer runs a statement inside an open transaction and reports the number
// of affected rows.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

// Store defines the transactional boundary for data access. Implementations
// manage begin/commit/rollback internally.
type Store interface {
	Dialect() Dialect
	// WithTransaction executes fn within a single transaction. If fn returns
	// an error or panics, the transaction is rolled back; otherwise it is
	// committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Execer) error) error
	// HealthCheck reports whether the database still answers.
	HealthCheck(ctx context.Context) error
	// Close releases the underlying connections.
	Close(ctx context.Context) error
}

// Opener acquires a store for the duration of one unit of work.
type Opener func(ctx context.Context) (Store, error)
