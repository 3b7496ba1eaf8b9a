package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	uniqueViolation = "23505"
	defaultAttempts = 3
	defaultBackoff  = 500 * time.Millisecond
)

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Deduplicator runs a side effect at most once per event id. The id is claimed
// in processed_events and the claim only commits if the action succeeds.
type Deduplicator struct {
	db       TxBeginner
	logger   *zap.Logger
	attempts int
	backoff  time.Duration
}

func NewDeduplicator(db TxBeginner, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{
		db:       db,
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// WithRetry overrides the retry policy for the action.
func (d *Deduplicator) WithRetry(attempts int, backoff time.Duration) *Deduplicator {
	if attempts > 0 {
		d.attempts = attempts
	}
	d.backoff = backoff
	return d
}

// Process returns nil without calling action when eventID was already handled.
func (d *Deduplicator) Process(ctx context.Context, eventID int64, action func(ctx context.Context) error) error {
	span := trace.SpanFromContext(ctx)

	tx, err := d.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		shutdownCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(shutdownCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				shutdownCtx,
				d.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	query := `
		INSERT INTO processed_events (event_id)
		VALUES ($1)
	`

	if _, err = tx.Exec(ctx, query, eventID); err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			mylogger.Info(
				ctx,
				d.logger,
				"Event already processed, skipping",
				zap.Int64("event_id", eventID),
			)

			return nil
		}

		span.RecordError(err)
		return fmt.Errorf("error claiming event %d: %w", eventID, err)
	}

	if err := d.retry(ctx, action); err != nil {
		mylogger.Error(
			ctx,
			d.logger,
			"Event action failed after retries",
			zap.Int64("event_id", eventID),
			zap.Error(err),
		)

		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("error committing event %d: %w", eventID, err)
	}

	return nil
}

func (d *Deduplicator) retry(ctx context.Context, action func(ctx context.Context) error) error {
	var err error
	for i := 0; i < d.attempts; i++ {
		if err = action(ctx); err == nil {
			return nil
		}

		if i == d.attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.backoff):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", d.attempts, err)
}
