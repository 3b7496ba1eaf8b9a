package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/fastplat/auth/pkg/outbox/domain"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *domain.OutboxEvent) error
	GetUnpublishedEvents(ctx context.Context, tx pgx.Tx, batchSize int) ([]*domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, tx pgx.Tx, eventID int64) error
	MarkEventFailed(ctx context.Context, tx pgx.Tx, eventID int64, errMsg string) error
}

type KafkaProducer interface {
	ProduceMessage(ctx context.Context, topic string, key string, message any) error
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Option func(*OutboxProcessor)

func WithBatchSize(n int) Option {
	return func(p *OutboxProcessor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(p *OutboxProcessor) {
		if d > 0 {
			p.interval = d
		}
	}
}

type OutboxProcessor struct {
	db            TxBeginner
	repo          OutboxRepository
	kafkaProducer KafkaProducer
	logger        *zap.Logger
	batchSize     int
	interval      time.Duration
	tracer        trace.Tracer
}

func NewOutboxProcessor(
	db TxBeginner,
	repo OutboxRepository,
	producer KafkaProducer,
	logger *zap.Logger,
	opts ...Option,
) *OutboxProcessor {
	p := &OutboxProcessor{
		db:            db,
		repo:          repo,
		kafkaProducer: producer,
		logger:        logger,
		batchSize:     50,
		interval:      500 * time.Millisecond,
		tracer:        otel.Tracer("outbox-worker"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Start polls the outbox until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	mylogger.Info(
		ctx,
		p.logger,
		"Starting outbox processor",
		zap.Duration("interval", p.interval),
		zap.Int("batch_size", p.batchSize),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

// ProcessBatch publishes one batch of pending events and returns how many were
// published.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.ProcessBatch")
	defer span.End()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		err := tx.Rollback(cleanupCtx)
		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.GetUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}

	if len(events) == 0 {
		return 0, nil
	}

	span.SetAttributes(attribute.Int("events", len(events)))

	published := 0
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			mylogger.Warn(
				ctx,
				p.logger,
				"outbox worker publish failed",
				zap.Int64("id", event.Id),
				zap.String("event_type", event.EventType),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkEventFailed(ctx, tx, event.Id, err.Error()); dbErr != nil {
				return published, dbErr
			}
			continue
		}

		if err := p.repo.MarkEventPublished(ctx, tx, event.Id); err != nil {
			return published, err
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("error committing outbox batch: %w", err)
	}

	mylogger.Debug(
		ctx,
		p.logger,
		"Outbox batch processed",
		zap.Int("published", published),
		zap.Int("failed", len(events)-published),
	)

	return published, nil
}

func (p *OutboxProcessor) publish(ctx context.Context, event *domain.OutboxEvent) error {
	var envelope domain.Envelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return fmt.Errorf("error decoding envelope: %w", err)
	}

	envelope.EventID = event.Id

	return p.kafkaProducer.ProduceMessage(ctx, event.Topic, event.AggregateID, envelope)
}
