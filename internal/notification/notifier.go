// Package notification turns user events from kafka into follow-up security
// emails.
package notification

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/pkg/mylogger"
	outboxDomain "github.com/fastplat/auth/pkg/outbox/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Deduplicator interface {
	Process(ctx context.Context, eventID int64, action func(ctx context.Context) error) error
}

type PasswordNoticeSender interface {
	SendPasswordChangedEmail(ctx context.Context, to string) error
}

type Notifier struct {
	mailer PasswordNoticeSender
	dedup  Deduplicator
	logger *zap.Logger
	tracer trace.Tracer
}

func NewNotifier(mailer PasswordNoticeSender, dedup Deduplicator, logger *zap.Logger) *Notifier {
	return &Notifier{
		mailer: mailer,
		dedup:  dedup,
		logger: logger,
		tracer: otel.Tracer("notification-service"),
	}
}

// HandleMessage is a kafka.HandlerFunc. Messages that can never be processed
// return nil so the offset moves past them.
func (n *Notifier) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var envelope outboxDomain.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		mylogger.Error(ctx, n.logger, "Error unmarshalling envelope",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return nil
	}

	switch envelope.Event {
	case domain.EventUserPasswordReset:
		var payload domain.UserPasswordResetPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.Email == "" {
			mylogger.Error(ctx, n.logger, "Malformed password reset event",
				zap.Int64("event_id", envelope.EventID),
				zap.Error(err),
			)
			return nil
		}

		return n.HandlePasswordReset(ctx, envelope.EventID, payload)
	default:
		mylogger.Debug(ctx, n.logger, "Ignored event type", zap.String("event", envelope.Event))
		return nil
	}
}

func (n *Notifier) HandlePasswordReset(ctx context.Context, eventID int64, payload domain.UserPasswordResetPayload) error {
	ctx, span := n.tracer.Start(ctx, "Notifier.HandlePasswordReset")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("event_id", eventID),
		attribute.String("user_id", payload.UserID),
	)

	send := func(ctx context.Context) error {
		if err := n.mailer.SendPasswordChangedEmail(ctx, payload.Email); err != nil {
			return err
		}

		mylogger.Info(ctx, n.logger, "Password changed notice sent", zap.String("user_id", payload.UserID))
		return nil
	}

	// Events published before the outbox id was attached cannot be deduplicated.
	if eventID == 0 {
		mylogger.Warn(ctx, n.logger, "Password reset event without id, sending without deduplication")
		return send(ctx)
	}

	if err := n.dedup.Process(ctx, eventID, send); err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}
