package postgres

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns       = 4
	defaultConnectTimeout = 5 * time.Second
	defaultPingTimeout    = 3 * time.Second
)

// DB is the pool surface the store needs; *pgxpool.Pool and pgxmock satisfy it.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store runs load transactions on a pgx pool.
type Store struct {
	db          DB
	metrics     *poolMetrics
	pingTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

// NewStoreWithDB wraps an already connected pool.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db, pingTimeout: defaultPingTimeout}
}

// NewStore opens a pool for cfg and pings it once. Pool gauges are published
// on the global meter provider when it accepts them.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres: config is required")
	}
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	s := &Store{db: pool, pingTimeout: cmp.Or(cfg.PingTimeout, defaultPingTimeout)}
	if err := s.ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	log := logger.FromContext(ctx)
	if pm, err := configurePostgresMetrics(cfg); err != nil {
		log.Warn("Postgres pool metrics disabled", "error", err)
	} else if pm != nil {
		pm.attach(pool)
		s.metrics = pm
	}
	log.With(
		"store_driver", "postgres",
		"dsn", redactedDSN(cfg),
		"max_conns", poolCfg.MaxConns,
	).Info("Store initialized")
	return s, nil
}

// Close releases the pool and its metrics registration.
func (s *Store) Close(ctx context.Context) error {
	if s.metrics != nil {
		s.metrics.unregister()
	}
	s.db.Close()
	logger.FromContext(ctx).Debug("Postgres store closed")
	return nil
}

func (s *Store) Dialect() store.Dialect { return store.DialectPostgres }

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func (s *Store) ping(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, cmp.Or(s.pingTimeout, defaultPingTimeout))
	defer cancel()
	return s.db.Ping(pctx)
}

func poolConfig(cfg *Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	pc.MaxConns = maxConns(cfg.MaxOpenConns)
	pc.MinConns = 0
	pc.ConnConfig.ConnectTimeout = cmp.Or(cfg.ConnectTimeout, defaultConnectTimeout)
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return pc, nil
}

// maxConns maps the configured pool size onto pgxpool's int32 bound.
func maxConns(n int) int32 {
	switch {
	case n <= 0:
		return defaultMaxConns
	case n > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(n)
	}
}
