package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	t.Run("Should build DSN for file path with pragmas", func(t *testing.T) {
		d, memory, err := buildDSN(&Config{Path: "/tmp/test.db"})
		require.NoError(t, err)
		assert.False(t, memory)
		assert.Contains(t, d, "file:/tmp/test.db")
		assert.Contains(t, d, "_pragma=journal_mode(WAL)")
		assert.Contains(t, d, "_pragma=foreign_keys(ON)")
		assert.Contains(t, d, "_pragma=busy_timeout(5000)")
	})
	t.Run("Should build DSN for in-memory shared cache", func(t *testing.T) {
		d, memory, err := buildDSN(&Config{Path: ":memory:", BusyTimeout: 250 * time.Millisecond})
		require.NoError(t, err)
		assert.True(t, memory)
		assert.Contains(t, d, "file::memory:?cache=shared")
		assert.Contains(t, d, "_pragma=busy_timeout(250)")
		assert.NotContains(t, d, "journal_mode")
	})
	t.Run("Should reject an empty path", func(t *testing.T) {
		_, _, err := buildDSN(&Config{Path: "  "})
		require.Error(t, err)
	})
}

func TestStore_WithTransaction(t *testing.T) {
	setup := func(t *testing.T) *Store {
		t.Helper()
		ctx := t.Context()
		dbPath := filepath.Join(t.TempDir(), "tx.db")
		require.NoError(t, ApplyMigrations(ctx, dbPath))
		s, err := NewStore(ctx, &Config{Path: dbPath})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })
		return s
	}
	countCustomers := func(t *testing.T, s *Store) int {
		t.Helper()
		var n int
		require.NoError(t, s.DB().QueryRowContext(t.Context(), "SELECT COUNT(*) FROM customers").Scan(&n))
		return n
	}

	t.Run("Should commit when fn succeeds", func(t *testing.T) {
		s := setup(t)
		assert.Equal(t, store.DialectSQLite, s.Dialect())
		err := s.WithTransaction(t.Context(), func(ctx context.Context, tx store.Execer) error {
			n, err := tx.Exec(ctx, "INSERT INTO customers (customer_id, phone) VALUES (?, ?)", "C1", "+20100")
			assert.Equal(t, int64(1), n)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countCustomers(t, s))
	})

	t.Run("Should rollback every statement when fn fails", func(t *testing.T) {
		s := setup(t)
		boom := errors.New("boom")
		err := s.WithTransaction(t.Context(), func(ctx context.Context, tx store.Execer) error {
			_, err := tx.Exec(ctx, "INSERT INTO customers (customer_id) VALUES (?)", "C1")
			require.NoError(t, err)
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countCustomers(t, s))
	})

	t.Run("Should rollback and repanic when fn panics", func(t *testing.T) {
		s := setup(t)
		assert.Panics(t, func() {
			_ = s.WithTransaction(t.Context(), func(ctx context.Context, tx store.Execer) error {
				_, _ = tx.Exec(ctx, "INSERT INTO customers (customer_id) VALUES (?)", "C1")
				panic("unexpected")
			})
		})
		assert.Equal(t, 0, countCustomers(t, s))
	})

	t.Run("Should surface constraint violations", func(t *testing.T) {
		s := setup(t)
		err := s.WithTransaction(t.Context(), func(ctx context.Context, tx store.Execer) error {
			_, err := tx.Exec(ctx, "INSERT INTO items (item_id, order_id) VALUES (?, ?)", "I1", "missing")
			return err
		})
		require.Error(t, err)
	})
}

func TestNewStore(t *testing.T) {
	t.Run("Should require a config", func(t *testing.T) {
		_, err := NewStore(t.Context(), nil)
		require.Error(t, err)
	})
	t.Run("Should open an in-memory database", func(t *testing.T) {
		ctx := t.Context()
		s, err := NewStore(ctx, &Config{Path: ":memory:"})
		require.NoError(t, err)
		defer s.Close(ctx)
		require.NoError(t, RunMigrationsForDB(ctx, s.DB()))
		var fk int
		require.NoError(t, s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 1, fk)
	})
}

func TestStore_HealthCheck(t *testing.T) {
	t.Run("Should pass while open and fail once closed", func(t *testing.T) {
		ctx := t.Context()
		s, err := NewStore(ctx, &Config{Path: filepath.Join(t.TempDir(), "health.db")})
		require.NoError(t, err)
		require.NoError(t, s.HealthCheck(ctx))
		require.NoError(t, s.Close(ctx))
		assert.ErrorContains(t, s.HealthCheck(ctx), "sqlite: health check failed")
	})
}
