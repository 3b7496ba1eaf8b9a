package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SessionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, session *domain.SessionToken) error
	FindByToken(ctx context.Context, token string) (*domain.SessionToken, error)
	Invalidate(ctx context.Context, tx pgx.Tx, token string) error
	InvalidateAllForUser(ctx context.Context, tx pgx.Tx, userID string) ([]string, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.SessionToken, error)
}

const sessionColumns = `id, token, user_id, user_agent, purpose, is_valid, expires_at, created_at`

type sessionRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewSessionRepository(pool *pgxpool.Pool, logger *zap.Logger) SessionRepository {
	return &sessionRepository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/session_repo"),
	}
}

func scanSession(row pgx.Row) (*domain.SessionToken, error) {
	var s domain.SessionToken
	if err := row.Scan(
		&s.ID,
		&s.Token,
		&s.UserID,
		&s.UserAgent,
		&s.Purpose,
		&s.IsValid,
		&s.ExpiresAt,
		&s.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepository) Create(ctx context.Context, tx pgx.Tx, session *domain.SessionToken) error {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", session.UserID),
		attribute.String("purpose", string(session.Purpose)),
	)

	query := `
		INSERT INTO session_tokens (token, user_id, user_agent, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_valid, created_at;
	`

	err := tx.QueryRow(
		ctx,
		query,
		session.Token,
		session.UserID,
		session.UserAgent,
		session.Purpose,
		session.ExpiresAt,
	).Scan(&session.ID, &session.IsValid, &session.CreatedAt)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to save session",
			zap.String("user_id", session.UserID),
			zap.Error(err),
		)

		return fmt.Errorf("error creating session: %w", err)
	}

	return nil
}

func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*domain.SessionToken, error) {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.FindByToken")
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM session_tokens WHERE token = $1;`

	session, err := scanSession(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		span.RecordError(err)

		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}

		return nil, fmt.Errorf("error getting session: %w", err)
	}

	return session, nil
}

func (r *sessionRepository) Invalidate(ctx context.Context, tx pgx.Tx, token string) error {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.Invalidate")
	defer span.End()

	query := `
		UPDATE session_tokens
		SET is_valid = FALSE
		WHERE token = $1 AND is_valid;
	`

	ct, err := tx.Exec(ctx, query, token)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to invalidate session",
			zap.Error(err),
		)

		return fmt.Errorf("error invalidating session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// InvalidateAllForUser flips every valid session of the user in one statement
// and returns the tokens it flipped.
func (r *sessionRepository) InvalidateAllForUser(ctx context.Context, tx pgx.Tx, userID string) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.InvalidateAllForUser")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	query := `
		UPDATE session_tokens
		SET is_valid = FALSE
		WHERE user_id = $1 AND is_valid
		RETURNING token;
	`

	rows, err := tx.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to invalidate user sessions",
			zap.String("user_id", userID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("error invalidating sessions: %w", err)
	}

	tokens, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error invalidating sessions: %w", err)
	}

	span.SetAttributes(attribute.Int("invalidated", len(tokens)))

	return tokens, nil
}

func (r *sessionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.SessionToken, error) {
	ctx, span := r.tracer.Start(ctx, "SessionRepository.ListByUser")
	defer span.End()

	query := `SELECT ` + sessionColumns + ` FROM session_tokens WHERE user_id = $1 ORDER BY id;`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.SessionToken
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("error scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
