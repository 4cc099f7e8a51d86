// Package notify delivers the end-of-run report.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
)

const (
	SubjectSuccess = "ETL Pipeline Success"
	SubjectFailure = "ETL Pipeline Failure"
)

// Message is one run report.
type Message struct {
	RunID   string
	Subject string
	Body    string
	Success bool
}

// Notifier sends run reports. Send failures are returned to the caller,
// which decides whether they affect the run outcome.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// New builds the notifier selected by cfg.
func New(cfg *config.NotifyConfig) (Notifier, error) {
	if cfg == nil {
		return Nop{}, nil
	}
	switch cfg.Driver {
	case "smtp":
		return NewSMTP(&cfg.SMTP)
	case "webhook":
		return NewWebhook(&cfg.Webhook)
	case "", "log":
		return Log{}, nil
	case "none":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("notify: unsupported driver %q", cfg.Driver)
	}
}

// SuccessMessage reports a committed run.
func SuccessMessage(runID string, orders int, duration time.Duration, end time.Time) Message {
	return Message{
		RunID:   runID,
		Subject: SubjectSuccess,
		Success: true,
		Body: fmt.Sprintf(
			"ETL Pipeline completed successfully.\n\nOrders processed: %d\nDuration: %.2f seconds\nEnd time: %s",
			orders, duration.Seconds(), end.Format(time.DateTime),
		),
	}
}

// FailureMessage reports a failed run.
func FailureMessage(runID string, cause error, duration time.Duration) Message {
	return Message{
		RunID:   runID,
		Subject: SubjectFailure,
		Body: fmt.Sprintf(
			"ETL Pipeline failed with error:\n\n%v\n\nDuration before failure: %.2f seconds",
			cause, duration.Seconds(),
		),
	}
}

// Log writes the report to the context logger.
type Log struct{}

func (Log) Notify(ctx context.Context, msg Message) error {
	log := logger.FromContext(ctx).With("run_id", msg.RunID, "subject", msg.Subject)
	if msg.Success {
		log.Info("Run report", "body", msg.Body)
	} else {
		log.Error("Run report", "body", msg.Body)
	}
	return nil
}

// Nop discards reports.
type Nop struct{}

func (Nop) Notify(context.Context, Message) error { return nil }
