package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/compozy/orderetl/engine/infra/monitoring"
	"github.com/compozy/orderetl/engine/infra/repo"
	"github.com/compozy/orderetl/engine/infra/sqlite"
	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/engine/loader"
	"github.com/compozy/orderetl/engine/notify"
	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/engine/source"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const (
	docA = `{"order_id":"ORD-1","order_number":"N-1","created_at":"2025-01-05T10:00:00Z",
		"customer":{"customer_id":"C1","first_name":"Mona"}}`
	docB = `{"order_id":"ORD-2","order_number":"N-2","created_at":"2025-01-05 11:30:00",
		"items":[{"item_id":"I1","name":"Tea","quantity":2,"unit_price":"12.50"}]}`
)

type stubSource struct {
	docs []order.Raw
	err  error
}

func (s *stubSource) Extract(context.Context) ([]order.Raw, error) { return s.docs, s.err }
func (s *stubSource) Describe() string { return "stub" }

type stubLoader struct {
	errs   []error
	calls  int
	graphs []*order.Graph
}

func (l *stubLoader) Load(_ context.Context, graphs []*order.Graph) (*loader.Result, error) {
	l.calls++
	l.graphs = graphs
	if len(l.errs) >= l.calls && l.errs[l.calls-1] != nil {
		return nil, l.errs[l.calls-1]
	}
	return &loader.Result{Orders: len(graphs), Driver: store.DialectSQLite, Duration: time.Millisecond}, nil
}

type recordingNotifier struct {
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.msgs = append(n.msgs, msg)
	return n.err
}

type stubTextfile struct{ writes int }

func (s *stubTextfile) WriteTextfile(context.Context) error {
	s.writes++
	return nil
}

func raws(docs ...string) []order.Raw {
	out := make([]order.Raw, len(docs))
	for i, d := range docs {
		out[i] = order.Raw{Source: string(rune('a'+i)) + ".json", Data: []byte(d)}
	}
	return out
}

func newPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	p.newID = func() string { return "run-1" }
	return p
}

func serializationFailure() error {
	return &pgconn.PgError{Code: pgerrcode.SerializationFailure, Message: "could not serialize access"}
}

func TestPipeline_Run(t *testing.T) {
	t.Run("Should load the batch and send one success report", func(t *testing.T) {
		ld := &stubLoader{}
		n := &recordingNotifier{}
		tf := &stubTextfile{}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA, docB)}, Loader: ld, Notifier: n, Textfile: tf})
		sum, err := p.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, "run-1", sum.RunID)
		assert.Equal(t, 2, sum.Orders)
		assert.Equal(t, 1, sum.Attempts)
		assert.Equal(t, store.DialectSQLite, sum.Driver)
		require.Len(t, ld.graphs, 2)
		assert.Equal(t, "a.json", ld.graphs[0].Source)
		require.Len(t, n.msgs, 1)
		assert.Equal(t, notify.SubjectSuccess, n.msgs[0].Subject)
		assert.Contains(t, n.msgs[0].Body, "Orders processed: 2")
		assert.Equal(t, 1, tf.writes)
	})

	t.Run("Should abort before loading when a required key is missing", func(t *testing.T) {
		ld := &stubLoader{}
		n := &recordingNotifier{}
		bad := `{"order_id":"ORD-3","created_at":null}`
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA, bad)}, Loader: ld, Notifier: n})
		_, err := p.Run(t.Context())
		var se *StructureError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "b.json", se.Source)
		assert.Equal(t, []string{"order_number"}, se.Missing)
		assert.True(t, IsStructural(err))
		assert.Zero(t, ld.calls)
		require.Len(t, n.msgs, 1)
		assert.Equal(t, notify.SubjectFailure, n.msgs[0].Subject)
		assert.Contains(t, n.msgs[0].Body, "missing required fields: order_number")
	})

	t.Run("Should report extraction failures", func(t *testing.T) {
		n := &recordingNotifier{}
		p := newPipeline(t, Options{Source: &stubSource{err: source.ErrNoDocuments}, Loader: &stubLoader{}, Notifier: n})
		_, err := p.Run(t.Context())
		assert.ErrorIs(t, err, source.ErrNoDocuments)
		require.Len(t, n.msgs, 1)
		assert.False(t, n.msgs[0].Success)
	})

	t.Run("Should not retry without a retry budget", func(t *testing.T) {
		ld := &stubLoader{errs: []error{serializationFailure()}}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA)}, Loader: ld})
		_, err := p.Run(t.Context())
		require.Error(t, err)
		assert.Equal(t, 1, ld.calls)
	})

	t.Run("Should retry the whole batch on transient errors", func(t *testing.T) {
		ld := &stubLoader{errs: []error{serializationFailure(), serializationFailure()}}
		p := newPipeline(t, Options{
			Source:       &stubSource{docs: raws(docA, docB)},
			Loader:       ld,
			LoadRetries:  3,
			RetryBackoff: time.Millisecond,
		})
		sum, err := p.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 3, ld.calls)
		assert.Equal(t, 3, sum.Attempts)
		assert.Len(t, ld.graphs, 2)
	})

	t.Run("Should give up after the retry budget", func(t *testing.T) {
		ld := &stubLoader{errs: []error{serializationFailure(), serializationFailure(), serializationFailure()}}
		p := newPipeline(t, Options{
			Source:       &stubSource{docs: raws(docA)},
			Loader:       ld,
			LoadRetries:  2,
			RetryBackoff: time.Millisecond,
		})
		_, err := p.Run(t.Context())
		var pgErr *pgconn.PgError
		require.ErrorAs(t, err, &pgErr)
		assert.Equal(t, 3, ld.calls)
	})

	t.Run("Should not retry permanent errors", func(t *testing.T) {
		perm := &loader.OrderError{OrderID: "ORD-1", Entity: "items", Err: errors.New("NOT NULL constraint failed")}
		ld := &stubLoader{errs: []error{perm}}
		p := newPipeline(t, Options{
			Source:       &stubSource{docs: raws(docA)},
			Loader:       ld,
			LoadRetries:  5,
			RetryBackoff: time.Millisecond,
		})
		_, err := p.Run(t.Context())
		assert.ErrorIs(t, err, perm)
		assert.Equal(t, 1, ld.calls)
		assert.False(t, IsStructural(err))
	})

	t.Run("Should keep the outcome when the notification fails", func(t *testing.T) {
		n := &recordingNotifier{err: errors.New("smtp down")}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA)}, Loader: &stubLoader{}, Notifier: n})
		_, err := p.Run(t.Context())
		require.NoError(t, err)
		assert.Len(t, n.msgs, 1)
	})

	t.Run("Should record run metrics", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		pm, err := monitoring.NewPipelineMetrics(provider.Meter("test"))
		require.NoError(t, err)
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA, docB)}, Loader: &stubLoader{}, Metrics: pm})
		_, err = p.Run(t.Context())
		require.NoError(t, err)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		names := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				names[m.Name] = true
			}
		}
		assert.True(t, names["orderetl_pipeline_runs_total"])
		assert.True(t, names["orderetl_pipeline_orders_loaded_total"])
		assert.True(t, names["orderetl_pipeline_last_success_timestamp_seconds"])
	})

	t.Run("Should label runs by failure cause", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		pm, err := monitoring.NewPipelineMetrics(provider.Meter("test"))
		require.NoError(t, err)
		bad := newPipeline(t, Options{
			Source:  &stubSource{docs: raws(`{"order_id": true}`)},
			Loader:  &stubLoader{},
			Metrics: pm,
		})
		_, err = bad.Run(t.Context())
		require.Error(t, err)
		down := newPipeline(t, Options{
			Source:  &stubSource{docs: raws(docA)},
			Loader:  &stubLoader{errs: []error{errors.New("connection refused")}},
			Metrics: pm,
		})
		_, err = down.Run(t.Context())
		require.Error(t, err)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(t.Context(), &rm))
		outcomes := map[string]int64{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				sum, ok := m.Data.(metricdata.Sum[int64])
				if m.Name != "orderetl_pipeline_runs_total" || !ok {
					continue
				}
				for _, dp := range sum.DataPoints {
					v, _ := dp.Attributes.Value("outcome")
					outcomes[v.AsString()] += dp.Value
				}
			}
		}
		assert.Equal(t, map[string]int64{
			monitoring.OutcomeInvalidInput: 1,
			monitoring.OutcomeFailure:      1,
		}, outcomes)
	})
}

type stubLock struct {
	held     bool
	acquired int
	released int
}

func (l *stubLock) Acquire(context.Context) (func(context.Context) error, error) {
	if l.held {
		return nil, errors.New("another run holds the lock")
	}
	l.held = true
	l.acquired++
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

func TestPipeline_Lock(t *testing.T) {
	t.Run("Should hold the lock for the run and release it", func(t *testing.T) {
		lock := &stubLock{}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA)}, Loader: &stubLoader{}, Lock: lock})
		_, err := p.Run(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 1, lock.acquired)
		assert.Equal(t, 1, lock.released)
	})

	t.Run("Should fail without loading when the lock is taken", func(t *testing.T) {
		lock := &stubLock{held: true}
		ld := &stubLoader{}
		n := &recordingNotifier{}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA)}, Loader: ld, Lock: lock, Notifier: n})
		_, err := p.Run(t.Context())
		assert.ErrorContains(t, err, "lock: another run holds the lock")
		assert.Zero(t, ld.calls)
		require.Len(t, n.msgs, 1)
		assert.False(t, n.msgs[0].Success)
	})

	t.Run("Should release the lock when loading fails", func(t *testing.T) {
		lock := &stubLock{}
		ld := &stubLoader{errs: []error{errors.New("disk full")}}
		p := newPipeline(t, Options{Source: &stubSource{docs: raws(docA)}, Loader: ld, Lock: lock})
		_, err := p.Run(t.Context())
		require.Error(t, err)
		assert.Equal(t, 1, lock.released)
	})
}

func TestPrecheck(t *testing.T) {
	t.Run("Should reject documents that are not objects", func(t *testing.T) {
		err := precheck([]order.Raw{{Source: "list.json", Data: []byte(`[{"order_id":"X"}]`)}})
		var se *StructureError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "document list.json is not a JSON object", se.Error())
	})

	t.Run("Should list every missing key", func(t *testing.T) {
		err := precheck([]order.Raw{{Source: "x.json", Data: []byte(`{"order_number":"N"}`)}})
		assert.EqualError(t, err, "document x.json missing required fields: order_id, created_at")
	})

	t.Run("Should accept keys with null values", func(t *testing.T) {
		err := precheck([]order.Raw{{Source: "y.json", Data: []byte(`{"order_id":"Y","order_number":null,"created_at":null}`)}})
		assert.NoError(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("Should require a source and a loader", func(t *testing.T) {
		_, err := New(Options{Loader: &stubLoader{}})
		assert.Error(t, err)
		_, err = New(Options{Source: &stubSource{}})
		assert.Error(t, err)
		_, err = New(Options{Source: &stubSource{}, Loader: &stubLoader{}, LoadRetries: -1})
		assert.Error(t, err)
	})
}

func TestPipeline_EndToEndSQLite(t *testing.T) {
	t.Run("Should extract, normalize and load into sqlite", func(t *testing.T) {
		ctx := t.Context()
		fsys := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fsys, "in/order_1.json", []byte(docA), 0o644))
		require.NoError(t, afero.WriteFile(fsys, "in/order_2.json", []byte(docB), 0o644))

		cfg := config.Default().Database
		cfg.Driver = "sqlite"
		cfg.SQLitePath = filepath.Join(t.TempDir(), "orders.db")
		provider := repo.NewProvider(&cfg)
		require.NoError(t, provider.Migrate(ctx))
		ld, err := loader.New(provider.Open)
		require.NoError(t, err)

		p := newPipeline(t, Options{Source: source.NewFS(fsys, "in", "*.json"), Loader: ld})
		sum, err := p.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Orders)

		reader, err := sqlite.NewStore(ctx, &sqlite.Config{Path: cfg.SQLitePath})
		require.NoError(t, err)
		defer reader.Close(ctx)
		var n int
		require.NoError(t, reader.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM orders").Scan(&n))
		assert.Equal(t, 2, n)
		require.NoError(t, reader.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n))
		assert.Equal(t, 1, n)
	})
}
