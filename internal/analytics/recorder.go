package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forkline-app/forkline-backend/pkg/config"
	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/logger"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 200 * time.Millisecond
)

// OrderEventRow is one analytics fact written to the order events table.
type OrderEventRow struct {
	EventID    string    `bigquery:"event_id"`
	EventType  string    `bigquery:"event_type"`
	OrderID    string    `bigquery:"order_id"`
	UserID     string    `bigquery:"user_id"`
	VendorID   string    `bigquery:"vendor_id"`
	RiderID    string    `bigquery:"rider_id"`
	Status     string    `bigquery:"status"`
	Amount     string    `bigquery:"amount"`
	OccurredAt time.Time `bigquery:"occurred_at"`
}

type inserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Recorder buffers order analytics events and writes them in batches.
// Recording is best-effort: a failed flush is logged, never surfaced to the
// order path.
type Recorder interface {
	RecordOrderEvent(ctx context.Context, eventType enums.AnalyticsEventType, order *models.Order, amount string)
	Flush(ctx context.Context) error
}

type recorder struct {
	mu        sync.Mutex
	client    inserter
	table     string
	batchSize int
	buffer    []any
	log       *logger.Logger
}

// NewRecorder wires a BigQuery-backed analytics recorder.
func NewRecorder(client inserter, cfg config.BigQueryConfig, log *logger.Logger) (Recorder, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if cfg.OrderEventsTable == "" {
		return nil, fmt.Errorf("order events table required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &recorder{
		client:    client,
		table:     cfg.OrderEventsTable,
		batchSize: batchSize,
		log:       log,
	}, nil
}

// NewNoopRecorder returns a recorder that drops every event. Used when the
// deployment runs without BigQuery.
func NewNoopRecorder() Recorder {
	return &noopRecorder{}
}

type noopRecorder struct{}

func (noopRecorder) RecordOrderEvent(context.Context, enums.AnalyticsEventType, *models.Order, string) {
}
func (noopRecorder) Flush(context.Context) error { return nil }

func (r *recorder) RecordOrderEvent(ctx context.Context, eventType enums.AnalyticsEventType, order *models.Order, amount string) {
	riderID := ""
	if order.RiderID != nil {
		riderID = order.RiderID.String()
	}
	row := OrderEventRow{
		EventID:    uuid.NewString(),
		EventType:  string(eventType),
		OrderID:    order.ID.String(),
		UserID:     order.UserID.String(),
		VendorID:   order.VendorID.String(),
		RiderID:    riderID,
		Status:     string(order.Status),
		Amount:     amount,
		OccurredAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, row)
	full := len(r.buffer) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(ctx); err != nil && r.log != nil {
			r.log.Error(ctx, "flush analytics events", err)
		}
	}
}

// Flush writes the buffered rows, retrying transient insert failures with
// backoff. Rows that still fail after the final attempt go back into the
// buffer for the next flush.
func (r *recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	rows := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(rows) == 0 {
		return nil
	}

	backoff := defaultInitialBackoff
	var err error
	for attempt := 1; attempt <= defaultMaxAttempts; attempt++ {
		err = r.client.InsertRows(ctx, r.table, rows)
		if err == nil {
			return nil
		}
		if attempt == defaultMaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.requeue(rows)
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	r.requeue(rows)
	return fmt.Errorf("insert %s rows: %w", r.table, err)
}

func (r *recorder) requeue(rows []any) {
	r.mu.Lock()
	r.buffer = append(rows, r.buffer...)
	r.mu.Unlock()
}
