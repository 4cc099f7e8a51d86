package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	monitoringmetrics "github.com/compozy/orderetl/engine/infra/monitoring/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultPoolLabel  = "default"
	postgresMeterName = "orderetl.postgres"
)

type poolInstruments struct {
	open        metric.Int64ObservableGauge
	inUse       metric.Int64ObservableGauge
	idle        metric.Int64ObservableGauge
	maxConns    metric.Int64ObservableGauge
	acquireWait metric.Float64ObservableCounter
}

var (
	instrumentsOnce sync.Once
	instrumentsErr  error
	instruments     poolInstruments
	trackedPools    sync.Map
)

// poolMetrics publishes pgxpool statistics for one store through async
// instruments on the global meter provider.
type poolMetrics struct {
	label string
	pool  atomic.Pointer[pgxpool.Pool]
}

func configurePostgresMetrics(cfg *Config) (*poolMetrics, error) {
	if cfg == nil {
		return nil, nil
	}
	instrumentsOnce.Do(func() {
		instrumentsErr = registerPoolInstruments(otel.GetMeterProvider().Meter(postgresMeterName))
	})
	if instrumentsErr != nil {
		return nil, fmt.Errorf("postgres: init metrics: %w", instrumentsErr)
	}
	return &poolMetrics{label: computePoolLabel(cfg)}, nil
}

func registerPoolInstruments(meter metric.Meter) error {
	gauge := func(name, desc string) (metric.Int64ObservableGauge, error) {
		return meter.Int64ObservableGauge(
			monitoringmetrics.MetricNameWithSubsystem("postgres", name),
			metric.WithDescription(desc),
		)
	}
	var err error
	if instruments.open, err = gauge("connections_open", "Open Postgres connections"); err != nil {
		return err
	}
	if instruments.inUse, err = gauge("connections_in_use", "Postgres connections currently acquired"); err != nil {
		return err
	}
	if instruments.idle, err = gauge("connections_idle", "Idle Postgres connections"); err != nil {
		return err
	}
	if instruments.maxConns, err = gauge("max_open_connections", "Configured Postgres pool size"); err != nil {
		return err
	}
	instruments.acquireWait, err = meter.Float64ObservableCounter(
		monitoringmetrics.MetricNameWithSubsystem("postgres", "connection_wait_seconds_total"),
		metric.WithDescription("Cumulative time spent waiting for a pooled connection"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(
		observePools,
		instruments.open,
		instruments.inUse,
		instruments.idle,
		instruments.maxConns,
		instruments.acquireWait,
	)
	return err
}

func observePools(_ context.Context, o metric.Observer) error {
	trackedPools.Range(func(key, _ any) bool {
		pm, ok := key.(*poolMetrics)
		if !ok {
			return true
		}
		pool := pm.pool.Load()
		if pool == nil {
			return true
		}
		stats := pool.Stat()
		attrs := metric.WithAttributes(attribute.String("pool", pm.label))
		o.ObserveInt64(instruments.open, int64(stats.TotalConns()), attrs)
		o.ObserveInt64(instruments.inUse, int64(stats.AcquiredConns()), attrs)
		o.ObserveInt64(instruments.idle, int64(stats.IdleConns()), attrs)
		o.ObserveInt64(instruments.maxConns, int64(stats.MaxConns()), attrs)
		o.ObserveFloat64(instruments.acquireWait, stats.EmptyAcquireWaitTime().Seconds(), attrs)
		return true
	})
	return nil
}

func (p *poolMetrics) attach(pool *pgxpool.Pool) {
	if p == nil || pool == nil {
		return
	}
	p.pool.Store(pool)
	trackedPools.Store(p, struct{}{})
}

func (p *poolMetrics) unregister() {
	if p == nil {
		return
	}
	trackedPools.Delete(p)
	p.pool.Store(nil)
}

// computePoolLabel derives a stable, low-cardinality label from host, port
// and database name.
func computePoolLabel(cfg *Config) string {
	if cfg == nil {
		return defaultPoolLabel
	}
	parts := make([]string, 0, 3)
	for _, c := range []string{cfg.Host, cfg.Port, cfg.DBName} {
		if s := sanitizeLabelComponent(c); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return defaultPoolLabel
	}
	return strings.Join(parts, "-")
}

func sanitizeLabelComponent(component string) string {
	lower := strings.ToLower(strings.TrimSpace(component))
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '-', r == '.', r == ':':
			return r
		default:
			return '_'
		}
	}, lower)
	return strings.Trim(mapped, "_")
}
