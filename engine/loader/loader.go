// Package loader persists normalized order graphs in one transaction per
// batch.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/pkg/logger"
)

// Result summarizes a committed batch.
type Result struct {
	Orders   int
	Driver   store.Dialect
	Duration time.Duration
}

// Loader writes batches through a store acquired per Load call.
type Loader struct {
	open store.Opener
}

func New(open store.Opener) (*Loader, error) {
	if open == nil {
		return nil, fmt.Errorf("loader: store opener is required")
	}
	return &Loader{open: open}, nil
}

// Load writes every graph inside a single transaction: either all orders of
// the batch are visible afterwards or none is. Per order, dimensions are
// written before payment and tracking, then the order row, then its children.
// The store is closed on every exit path.
func (l *Loader) Load(ctx context.Context, graphs []*order.Graph) (res *Result, err error) {
	log := logger.FromContext(ctx)
	if len(graphs) == 0 {
		log.Info("No orders to load")
		return &Result{}, nil
	}
	start := time.Now()
	s, err := l.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cErr := s.Close(ctx); cErr != nil {
			log.Warn("Failed to close store", "error", cErr)
		}
	}()
	dialect := s.Dialect()
	log.Info("Loading batch", "orders", len(graphs), "store_driver", dialect)
	err = s.WithTransaction(ctx, func(ctx context.Context, tx store.Execer) error {
		w := &writer{tx: tx, dialect: dialect, log: log}
		for _, g := range graphs {
			if err := w.write(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var oe *OrderError
		if errors.As(err, &oe) {
			fields := append([]any{
				"order_id", oe.OrderID,
				"source", oe.Source,
				"entity", oe.Entity,
				"error", oe.Err,
			}, errorFields(oe.Err)...)
			log.Error("Batch rolled back", fields...)
		} else {
			log.Error("Batch failed", append([]any{"error", err}, errorFields(err)...)...)
		}
		return nil, err
	}
	res = &Result{Orders: len(graphs), Driver: dialect, Duration: time.Since(start)}
	log.Info("Batch committed", "orders", res.Orders, "duration", res.Duration)
	return res, nil
}

type writer struct {
	tx      store.Execer
	dialect store.Dialect
	log     logger.Logger
}

type step struct {
	entity string
	spec   store.UpsertSpec
	rows   []store.Row
}

func (w *writer) write(ctx context.Context, g *order.Graph) error {
	for _, st := range plan(g) {
		rows := w.keyed(g, st)
		if len(rows) == 0 {
			continue
		}
		query, args, err := st.spec.Build(w.dialect, rows...)
		if err == nil {
			_, err = w.tx.Exec(ctx, query, args...)
		}
		if err != nil {
			return &OrderError{OrderID: g.Order.OrderID, Source: g.Source, Entity: st.entity, Err: err}
		}
	}
	w.log.Debug("Order written", "order_id", g.Order.OrderID, "items", len(g.Items), "actions", len(g.Actions))
	return nil
}

// plan lists the writes of one order in foreign-key order. Absent singletons
// and empty collections produce no step.
func plan(g *order.Graph) []step {
	steps := make([]step, 0, 11)
	add := func(entity string, spec store.UpsertSpec, rows ...store.Row) {
		if len(rows) > 0 {
			steps = append(steps, step{entity: entity, spec: spec, rows: rows})
		}
	}
	if g.Customer != nil {
		add("customer", customerSpec, customerRow(g.Customer))
	}
	if g.Merchant != nil {
		add("merchant", merchantSpec, merchantRow(g.Merchant))
	}
	if g.Driver != nil {
		add("driver", driverSpec, driverRow(g.Driver))
	}
	if g.PickupAddress != nil {
		add("pickup_address", addressSpec, addressRow(g.PickupAddress))
	}
	if g.DropoffAddress != nil {
		add("dropoff_address", addressSpec, addressRow(g.DropoffAddress))
	}
	if g.Payment != nil {
		add("payment", paymentSpec, paymentRow(g.Payment))
	}
	if g.Tracking != nil {
		add("tracking", trackingSpec, trackingRow(g.Tracking))
	}
	add("order", orderSpec, orderRow(&g.Order))
	add("items", itemSpec, itemRows(g.Items)...)
	add("order_actions", actionSpec, actionRows(g.Actions)...)
	if g.Notes != nil {
		add("notes", notesSpec, notesRow(g.Notes))
	}
	if g.Metadata != nil {
		add("metadata", metadataSpec, metadataRow(g.Metadata))
	}
	return steps
}

// keyed drops single-row writes whose natural key is missing; the order
// carries a null reference for them. Bulk rows are passed through so the
// store rejects an item or action without an id.
func (w *writer) keyed(g *order.Graph, st step) []store.Row {
	if len(st.rows) != 1 || st.entity == "items" || st.entity == "order_actions" {
		return st.rows
	}
	if isNullKey(st.rows[0][0]) {
		w.log.Debug("Skipping record without natural key", "order_id", g.Order.OrderID, "entity", st.entity)
		return nil
	}
	return st.rows
}

func isNullKey(v any) bool {
	switch k := v.(type) {
	case nil:
		return true
	case *string:
		return k == nil
	default:
		return false
	}
}
