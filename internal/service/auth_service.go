package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/fastplat/auth/internal/cache"
	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/metrics"
	"github.com/fastplat/auth/internal/notification/email"
	"github.com/fastplat/auth/internal/repository"
	"github.com/fastplat/auth/internal/security"
	"github.com/fastplat/auth/pkg/mylogger"
	outboxDomain "github.com/fastplat/auth/pkg/outbox/domain"
	"github.com/fastplat/auth/pkg/utils"
	passwordPolicy "github.com/fastplat/auth/pkg/validator"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Activate(ctx context.Context, activationCode string) (*domain.User, error)
	ResendActivation(ctx context.Context, email string) error

	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, identity domain.Identity) error
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)

	RequestRecoveryCode(ctx context.Context, email, userAgent string) (*RecoveryResult, error)
	VerifyRecoveryCode(ctx context.Context, identity domain.Identity, code string) error
	ResetPassword(ctx context.Context, identity domain.Identity, newPassword string) error

	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context, page, limit int) (*UserPage, error)
	ListUserSessions(ctx context.Context, userID string) ([]*domain.SessionToken, error)
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type EventStore interface {
	SaveOutboxEvent(ctx context.Context, tx pgx.Tx, event *outboxDomain.OutboxEvent) error
}

type Dependencies struct {
	DB        TxBeginner
	Users     repository.UserRepository
	Sessions  repository.SessionRepository
	Events    EventStore
	Cache     cache.SessionCache
	Hasher    security.Hasher
	Tokens    security.TokenManager
	Mailer    email.Sender
	Passwords passwordPolicy.Validator
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

type Options struct {
	// RequireVerifiedRecovery rejects ResetPassword unless VerifyRecoveryCode
	// succeeded first.
	RequireVerifiedRecovery bool
	RecoveryCodeLength      int
	EventsTopic             string
}

type authService struct {
	db        TxBeginner
	users     repository.UserRepository
	sessions  repository.SessionRepository
	events    EventStore
	cache     cache.SessionCache
	hasher    security.Hasher
	tokens    security.TokenManager
	mailer    email.Sender
	passwords passwordPolicy.Validator
	metrics   *metrics.Metrics
	logger    *zap.Logger
	validate  *validator.Validate
	tracer    trace.Tracer
	now       func() time.Time
	opts      Options
}

func NewAuthService(deps Dependencies, opts Options) AuthService {
	if opts.RecoveryCodeLength <= 0 {
		opts.RecoveryCodeLength = 5
	}
	if opts.EventsTopic == "" {
		opts.EventsTopic = "user_events"
	}

	sessionCache := deps.Cache
	if sessionCache == nil {
		sessionCache = cache.NewNoopSessionCache()
	}

	return &authService{
		db:        deps.DB,
		users:     deps.Users,
		sessions:  deps.Sessions,
		events:    deps.Events,
		cache:     sessionCache,
		hasher:    deps.Hasher,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		passwords: deps.Passwords,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validate:  newValidate(),
		tracer:    otel.Tracer("service/auth"),
		now:       time.Now,
		opts:      opts,
	}
}

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// inTx commits only when fn returns nil.
func (s *authService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return internalError("error beginning transaction", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(cleanupCtx, s.logger, "Error rolling back transaction", zap.Error(err))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return internalError("error committing transaction", err)
	}

	return nil
}

func (s *authService) saveEvent(ctx context.Context, tx pgx.Tx, eventType, userID string, payload any) error {
	event, err := outboxDomain.NewEvent(domain.AggregateUser, userID, eventType, s.opts.EventsTopic, payload)
	if err != nil {
		return internalError("error building event", err)
	}

	if err := s.events.SaveOutboxEvent(ctx, tx, event); err != nil {
		return internalError("error saving outbox event", err)
	}

	return nil
}

// observe records the outcome of op. Call it deferred with the named error.
func (s *authService) observe(ctx context.Context, op string, err error) {
	if err == nil {
		s.metrics.Operation(op, "ok")
		return
	}

	kind := domain.KindOf(err)
	s.metrics.Operation(op, string(kind))

	if kind == domain.KindInternal || kind == domain.KindDeliveryFailed {
		mylogger.Error(ctx, s.logger, op+" failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	mylogger.Debug(ctx, s.logger, op+" rejected", zap.String("kind", string(kind)))
}

func (s *authService) checkStruct(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return validationError(err)
	}
	return nil
}

func (s *authService) checkPassword(password string) error {
	if err := s.passwords.ValidatePassword(password); err != nil {
		return domain.NewError(domain.KindValidationFailed, err.Error(), err)
	}
	return nil
}

func validationError(err error) error {
	return domain.NewError(domain.KindValidationFailed, utils.ValidationMessage(err), err)
}

func internalError(msg string, err error) error {
	return domain.NewError(domain.KindInternal, msg, err)
}

func deliveryError(what string, err error) error {
	return domain.NewError(domain.KindDeliveryFailed, fmt.Sprintf("could not deliver %s email", what), err)
}
