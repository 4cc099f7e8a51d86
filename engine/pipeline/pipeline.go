// Package pipeline runs one extract, normalize and load pass and reports the
// outcome.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/compozy/orderetl/engine/infra/monitoring"
	"github.com/compozy/orderetl/engine/infra/store"
	"github.com/compozy/orderetl/engine/loader"
	"github.com/compozy/orderetl/engine/notify"
	"github.com/compozy/orderetl/engine/order"
	"github.com/compozy/orderetl/engine/source"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultRetryBackoff    = 500 * time.Millisecond
	defaultMaxRetryBackoff = 10 * time.Second
	notifyTimeout          = 30 * time.Second
)

// BatchLoader persists a normalized batch atomically.
type BatchLoader interface {
	Load(ctx context.Context, graphs []*order.Graph) (*loader.Result, error)
}

// TextfileWriter exports the current metrics snapshot.
type TextfileWriter interface {
	WriteTextfile(ctx context.Context) error
}

// Locker keeps runs from overlapping. Acquire fails fast when the lock is
// taken and returns the func releasing it.
type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// Options wires the run dependencies. Source and Loader are required.
type Options struct {
	Source          source.Source
	Loader          BatchLoader
	Normalizer      *order.Normalizer
	Notifier        notify.Notifier
	Metrics         *monitoring.PipelineMetrics
	Textfile        TextfileWriter
	Driver          store.Dialect
	Lock            Locker
	LoadRetries     int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// Summary describes a committed run.
type Summary struct {
	RunID     string
	Orders    int
	Driver    store.Dialect
	Attempts  int
	StartedAt time.Time
	EndedAt   time.Time
	Duration  time.Duration
}

type Pipeline struct {
	opts  Options
	now   func() time.Time
	newID func() string
}

func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if opts.Loader == nil {
		return nil, fmt.Errorf("pipeline: loader is required")
	}
	if opts.LoadRetries < 0 {
		return nil, fmt.Errorf("pipeline: load retries must not be negative")
	}
	if opts.Normalizer == nil {
		opts.Normalizer = order.NewNormalizer()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = &monitoring.PipelineMetrics{}
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.MaxRetryBackoff <= 0 {
		opts.MaxRetryBackoff = defaultMaxRetryBackoff
	}
	return &Pipeline{opts: opts, now: time.Now, newID: uuid.NewString}, nil
}

// Run executes one pass. Exactly one notification is attempted whatever the
// outcome; a notification failure is logged and does not change the result.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := p.now()
	runID := p.newID()
	log := logger.FromContext(ctx).With("run_id", runID)
	ctx = logger.ContextWithLogger(ctx, log)
	log.Info("ETL pipeline started", "source", p.opts.Source.Describe(), "start_time", start.Format(time.DateTime))

	sum, err := p.run(ctx, runID, start)
	end := p.now()
	duration := end.Sub(start)
	var msg notify.Message
	if err != nil {
		outcome := failureOutcome(err)
		p.opts.Metrics.RecordRun(ctx, outcome, duration)
		log.Error("ETL pipeline failed", "error", err, "outcome", outcome, "duration", duration)
		msg = notify.FailureMessage(runID, err, duration)
	} else {
		sum.EndedAt, sum.Duration = end, duration
		p.opts.Metrics.RecordRun(ctx, monitoring.OutcomeSuccess, duration)
		p.opts.Metrics.RecordLastSuccess(ctx, end)
		log.Info("ETL pipeline completed", "orders", sum.Orders, "duration", duration,
			"end_time", end.Format(time.DateTime))
		msg = notify.SuccessMessage(runID, sum.Orders, duration, end)
	}
	p.exportMetrics(ctx)
	p.notify(ctx, msg)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, start time.Time) (*Summary, error) {
	log := logger.FromContext(ctx)
	if p.opts.Lock != nil {
		release, err := p.opts.Lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("Failed to release run lock", "error", err)
			}
		}()
	}
	raws, err := p.opts.Source.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if err := precheck(raws); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	log.Info("Extracted orders", "count", len(raws))

	graphs, err := p.opts.Normalizer.NormalizeAll(ctx, raws)
	if err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}

	res, attempts, err := p.load(ctx, graphs)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	p.opts.Metrics.RecordLoad(ctx, string(res.Driver), res.Orders, res.Duration)
	log.Info("Loaded orders", "count", res.Orders, "attempts", attempts)
	return &Summary{
		RunID:     runID,
		Orders:    res.Orders,
		Driver:    res.Driver,
		Attempts:  attempts,
		StartedAt: start,
	}, nil
}

// load retries the whole batch on transient store errors. The previous
// attempt rolled back, so a retry never observes partial writes.
func (p *Pipeline) load(ctx context.Context, graphs []*order.Graph) (*loader.Result, int, error) {
	log := logger.FromContext(ctx)
	attempts := 0
	if p.opts.LoadRetries == 0 {
		attempts = 1
		res, err := p.opts.Loader.Load(ctx, graphs)
		return res, attempts, err
	}
	backoff := retry.WithMaxRetries(
		uint64(p.opts.LoadRetries), // #nosec G115 -- validated non-negative in New
		retry.WithCappedDuration(p.opts.MaxRetryBackoff, retry.NewExponential(p.opts.RetryBackoff)),
	)
	var res *loader.Result
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		var loadErr error
		res, loadErr = p.opts.Loader.Load(ctx, graphs)
		if loadErr == nil {
			return nil
		}
		if loader.IsTransient(loadErr) && attempts <= p.opts.LoadRetries {
			log.Warn("Transient load failure, retrying batch", "attempt", attempts, "error", loadErr)
			p.opts.Metrics.RecordRetry(ctx, string(p.opts.Driver))
			return retry.RetryableError(loadErr)
		}
		return loadErr
	})
	return res, attempts, err
}

func (p *Pipeline) exportMetrics(ctx context.Context) {
	if p.opts.Textfile == nil {
		return
	}
	if err := p.opts.Textfile.WriteTextfile(ctx); err != nil {
		logger.FromContext(ctx).Warn("Failed to write metrics textfile", "error", err)
	}
}

func (p *Pipeline) notify(ctx context.Context, msg notify.Message) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := p.opts.Notifier.Notify(nctx, msg); err != nil {
		logger.FromContext(ctx).Warn("Failed to send notification", "subject", msg.Subject, "error", err)
	}
}

func failureOutcome(err error) string {
	if IsStructural(err) {
		return monitoring.OutcomeInvalidInput
	}
	return monitoring.OutcomeFailure
}

// IsStructural reports whether err stems from invalid input documents
// rather than the store or the environment.
func IsStructural(err error) bool {
	var se *StructureError
	var de *order.DocumentError
	var je *source.InvalidJSONError
	return errors.As(err, &se) || errors.As(err, &de) || errors.As(err, &je) ||
		errors.Is(err, order.ErrMissingOrderID)
}
