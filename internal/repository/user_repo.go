package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context, limit, offset int) ([]*domain.User, int, error)
	Activate(ctx context.Context, tx pgx.Tx, code string) (*domain.User, error)
	RotateActivationCode(ctx context.Context, tx pgx.Tx, userID, code string) error
	SetForgetCode(ctx context.Context, tx pgx.Tx, userID, code string) error
	ConsumeForgetCode(ctx context.Context, userID, code string) error
	UpdatePassword(ctx context.Context, tx pgx.Tx, userID, passwordHash string, requireVerified bool) error
	SetStatus(ctx context.Context, tx pgx.Tx, userID string, status domain.Status) error
}

const userColumns = `id, user_name, email, password_hash, is_confirmed, activation_code, forget_code,
	recovery_state, status, role, is_premium, created_at, updated_at`

type userRepository struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	logger *zap.Logger
}

func NewUserRepository(pool *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepository{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/user_repo"),
	}
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.UserName,
		&u.Email,
		&u.PasswordHash,
		&u.IsConfirmed,
		&u.ActivationCode,
		&u.ForgetCode,
		&u.RecoveryState,
		&u.Status,
		&u.Role,
		&u.IsPremium,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) Create(ctx context.Context, tx pgx.Tx, user *domain.User) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.Create")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", user.ID))

	query := `
		INSERT INTO users (id, user_name, email, password_hash, activation_code, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + userColumns + `;
	`

	created, err := scanUser(tx.QueryRow(
		ctx,
		query,
		user.ID,
		user.UserName,
		user.Email,
		user.PasswordHash,
		user.ActivationCode,
		user.Role,
	))
	if err != nil {
		span.RecordError(err)

		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == uniqueViolation {
			mylogger.Warn(
				ctx,
				r.logger,
				"User already exists",
				zap.String("constraint", pgError.ConstraintName),
			)

			return nil, ErrUserAlreadyExists
		}

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to create user",
			zap.Error(err),
		)

		return nil, fmt.Errorf("error creating user: %w", err)
	}

	return created, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByEmail")
	defer span.End()

	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1);`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, r.notFoundOr(ctx, span, err, "Failed to get user by email")
	}

	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", id))

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.notFoundOr(ctx, span, err, "Failed to get user by id")
	}

	return user, nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*domain.User, int, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.List")
	defer span.End()

	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users;`).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error counting users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id LIMIT $1 OFFSET $2;`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list users",
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0, limit)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("error iterating users: %w", err)
	}

	return users, total, nil
}

// Activate consumes an activation code. The code only matches unconfirmed users,
// so a consumed code can never match again.
func (r *userRepository) Activate(ctx context.Context, tx pgx.Tx, code string) (*domain.User, error) {
	ctx, span := r.tracer.Start(ctx, "UserRepository.Activate")
	defer span.End()

	query := `
		UPDATE users
		SET is_confirmed = TRUE, activation_code = NULL, updated_at = NOW()
		WHERE activation_code = $1 AND is_confirmed = FALSE
		RETURNING ` + userColumns + `;
	`

	user, err := scanUser(tx.QueryRow(ctx, query, code))
	if err != nil {
		return nil, r.notFoundOr(ctx, span, err, "Failed to activate user")
	}

	return user, nil
}

func (r *userRepository) RotateActivationCode(ctx context.Context, tx pgx.Tx, userID, code string) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.RotateActivationCode")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	query := `
		UPDATE users
		SET activation_code = $2, updated_at = NOW()
		WHERE id = $1 AND is_confirmed = FALSE;
	`

	return r.execOne(ctx, span, tx, ErrAlreadyConfirmed, "Failed to rotate activation code", query, userID, code)
}

func (r *userRepository) SetForgetCode(ctx context.Context, tx pgx.Tx, userID, code string) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.SetForgetCode")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	query := `
		UPDATE users
		SET forget_code = $2, recovery_state = 'code_issued', updated_at = NOW()
		WHERE id = $1;
	`

	return r.execOne(ctx, span, tx, ErrUserNotFound, "Failed to set forget code", query, userID, code)
}

// ConsumeForgetCode clears the code only if it still equals code, so a request
// that overwrote it in the meantime wins.
func (r *userRepository) ConsumeForgetCode(ctx context.Context, userID, code string) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.ConsumeForgetCode")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	query := `
		UPDATE users
		SET forget_code = NULL, recovery_state = 'verified', updated_at = NOW()
		WHERE id = $1 AND forget_code = $2;
	`

	return r.execOne(ctx, span, r.pool, ErrCodeMismatch, "Failed to consume forget code", query, userID, code)
}

func (r *userRepository) UpdatePassword(ctx context.Context, tx pgx.Tx, userID, passwordHash string, requireVerified bool) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.UpdatePassword")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Bool("require_verified", requireVerified),
	)

	query := `
		UPDATE users
		SET password_hash = $2, forget_code = NULL, recovery_state = 'none', updated_at = NOW()
		WHERE id = $1 AND (NOT $3 OR recovery_state = 'verified');
	`

	missing := ErrUserNotFound
	if requireVerified {
		missing = ErrRecoveryNotVerified
	}

	return r.execOne(ctx, span, tx, missing, "Failed to update password", query, userID, passwordHash, requireVerified)
}

func (r *userRepository) SetStatus(ctx context.Context, tx pgx.Tx, userID string, status domain.Status) error {
	ctx, span := r.tracer.Start(ctx, "UserRepository.SetStatus")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE users
		SET status = $2, updated_at = NOW()
		WHERE id = $1;
	`

	return r.execOne(ctx, span, tx, ErrUserNotFound, "Failed to set status", query, userID, status)
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// execOne runs a single-row update and returns missing when no row matched.
func (r *userRepository) execOne(
	ctx context.Context,
	span trace.Span,
	db execer,
	missing error,
	logMsg string,
	query string,
	args ...any,
) error {
	ct, err := db.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			logMsg,
			zap.Error(err),
		)

		return fmt.Errorf("error updating user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return missing
	}

	return nil
}

func (r *userRepository) notFoundOr(ctx context.Context, span trace.Span, err error, logMsg string) error {
	span.RecordError(err)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUserNotFound
	}

	mylogger.Error(
		ctx,
		r.logger,
		logMsg,
		zap.Error(err),
	)

	return fmt.Errorf("error querying user: %w", err)
}
