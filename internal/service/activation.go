package service

import (
	"context"
	"errors"
	"strings"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/repository"
	"github.com/fastplat/auth/internal/security"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Register creates an unconfirmed account and mails its activation link. When
// the mail cannot be delivered the account is kept and DeliveryFailed is
// returned; ResendActivation is the retry path.
func (s *authService) Register(ctx context.Context, in RegisterInput) (_ *domain.User, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Register")
	defer span.End()
	defer func() { s.observe(ctx, "register", err) }()

	in.Email = normalizeEmail(in.Email)
	in.UserName = strings.TrimSpace(in.UserName)

	if err := s.checkStruct(in); err != nil {
		return nil, err
	}
	if err := s.checkPassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, domain.NewError(domain.KindConflict, "email is already registered", nil)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, internalError("error checking email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError("error hashing password", err)
	}

	code, err := security.NewActivationCode()
	if err != nil {
		return nil, internalError("error generating activation code", err)
	}

	user := &domain.User{
		ID:             uuid.NewString(),
		UserName:       in.UserName,
		Email:          in.Email,
		PasswordHash:   &hash,
		ActivationCode: &code,
		Role:           domain.RoleUser,
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	var created *domain.User
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = s.users.Create(ctx, tx, user)
		if err != nil {
			if errors.Is(err, repository.ErrUserAlreadyExists) {
				return domain.NewError(domain.KindConflict, "email is already registered", err)
			}
			return internalError("error creating user", err)
		}

		return s.saveEvent(ctx, tx, domain.EventUserRegistered, created.ID, domain.UserRegisteredPayload{
			UserID:   created.ID,
			UserName: created.UserName,
			Email:    created.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "User registered", zap.String("user_id", created.ID))

	if err := s.mailer.SendActivationEmail(ctx, created.Email, created.UserName, code); err != nil {
		span.RecordError(err)
		return nil, deliveryError("activation", err)
	}

	return created, nil
}

// Activate consumes an activation code exactly once. Unknown, already used and
// never issued codes are all NotFound.
func (s *authService) Activate(ctx context.Context, activationCode string) (_ *domain.User, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Activate")
	defer span.End()
	defer func() { s.observe(ctx, "activate", err) }()

	if activationCode == "" {
		return nil, domain.NewError(domain.KindNotFound, "activation code not found", nil)
	}

	var user *domain.User
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		user, err = s.users.Activate(ctx, tx, activationCode)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return domain.NewError(domain.KindNotFound, "activation code not found", err)
			}
			return internalError("error activating user", err)
		}

		return s.saveEvent(ctx, tx, domain.EventUserActivated, user.ID, domain.UserActivatedPayload{
			UserID:   user.ID,
			UserName: user.UserName,
			Email:    user.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "User activated", zap.String("user_id", user.ID))

	return user, nil
}

func (s *authService) ResendActivation(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ResendActivation")
	defer span.End()
	defer func() { s.observe(ctx, "resend_activation", err) }()

	in := emailInput{Email: normalizeEmail(email)}
	if err := s.checkStruct(in); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return domain.NewError(domain.KindNotFound, "no account with this email", err)
		}
		return internalError("error getting user", err)
	}

	if user.IsConfirmed {
		return domain.NewError(domain.KindConflict, "account is already activated", nil)
	}

	code, err := security.NewActivationCode()
	if err != nil {
		return internalError("error generating activation code", err)
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.users.RotateActivationCode(ctx, tx, user.ID, code); err != nil {
			if errors.Is(err, repository.ErrAlreadyConfirmed) {
				return domain.NewError(domain.KindConflict, "account is already activated", err)
			}
			return internalError("error rotating activation code", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.mailer.SendActivationEmail(ctx, user.Email, user.UserName, code); err != nil {
		span.RecordError(err)
		return deliveryError("activation", err)
	}

	return nil
}
