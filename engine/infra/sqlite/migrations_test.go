package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderTables = []string{
	"customers",
	"merchants",
	"drivers",
	"addresses",
	"payments",
	"tracking",
	"orders",
	"items",
	"order_actions",
	"order_notes",
	"order_metadata",
}

func TestMigrations(t *testing.T) {
	t.Run("Should create all order tables", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "tables.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))

		db := openTestSQLite(ctx, t, dbPath)
		expected := make(map[string]bool, len(orderTables))
		for _, name := range orderTables {
			expected[name] = true
		}
		rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table'")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var name string
			require.NoError(t, rows.Scan(&name))
			delete(expected, name)
		}
		require.NoError(t, rows.Err())
		assert.Empty(t, expected)
	})

	t.Run("Should create foreign key indexes", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "indexes.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))

		db := openTestSQLite(ctx, t, dbPath)
		indexes := make(map[string]bool)
		rows, err := db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'index'")
		require.NoError(t, err)
		defer rows.Close()
		for rows.Next() {
			var name string
			require.NoError(t, rows.Scan(&name))
			indexes[name] = true
		}
		require.NoError(t, rows.Err())
		for _, idx := range []string{
			"idx_orders_customer_id",
			"idx_orders_merchant_id",
			"idx_orders_driver_id",
			"idx_orders_created_at",
			"idx_items_order_id",
			"idx_order_actions_order_id",
		} {
			assert.Truef(t, indexes[idx], "expected index %s to exist", idx)
		}
	})

	t.Run("Should enforce foreign keys", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "fk.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))

		db := openTestSQLite(ctx, t, dbPath)
		_, err := db.ExecContext(ctx, "INSERT INTO orders (order_id, customer_id) VALUES ('O1', 'missing')")
		require.Error(t, err)
	})

	t.Run("Should reject null identities", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "notnull.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))

		db := openTestSQLite(ctx, t, dbPath)
		_, err := db.ExecContext(ctx, "INSERT INTO customers (customer_id, phone) VALUES (NULL, '+20100')")
		require.Error(t, err)
	})

	t.Run("Should rollback migrations", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "rollback.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))

		db := openTestSQLite(ctx, t, dbPath)
		gooseInitMu.Lock()
		goose.SetBaseFS(migrationsFS)
		require.NoError(t, goose.SetDialect("sqlite3"))
		err := goose.DownToContext(ctx, db, "migrations", 0)
		goose.SetBaseFS(nil)
		gooseInitMu.Unlock()
		require.NoError(t, err)

		var count int
		err = db.QueryRowContext(
			ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('orders', 'customers', 'items')",
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("Should be idempotent", func(t *testing.T) {
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "idempotent.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))
		require.NoError(t, ApplyMigrations(ctx, dbPath))
	})
}

func openTestSQLite(ctx context.Context, t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	dsn, _, err := buildDSN(&Config{Path: dbPath})
	require.NoError(t, err)
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, db.PingContext(ctx))
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return db
}
