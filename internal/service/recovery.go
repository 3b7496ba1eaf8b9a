package service

import (
	"context"
	"errors"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/repository"
	"github.com/fastplat/auth/internal/security"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RequestRecoveryCode stores a fresh numeric code, overwriting any pending one,
// and returns a recovery bearer token for the next two steps. Two concurrent
// requests race and the later write wins. The code is committed before the
// mail is sent, so DeliveryFailed leaves it in place until the next request.
func (s *authService) RequestRecoveryCode(ctx context.Context, email, userAgent string) (_ *RecoveryResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.RequestRecoveryCode")
	defer span.End()
	defer func() { s.observe(ctx, "request_recovery_code", err) }()

	in := emailInput{Email: normalizeEmail(email)}
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "no account with this email", err)
		}
		return nil, internalError("error getting user", err)
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	code, err := security.NewRecoveryCode(s.opts.RecoveryCodeLength)
	if err != nil {
		return nil, internalError("error generating recovery code", err)
	}

	token, err := s.issueSession(ctx, user, domain.PurposeRecovery, userAgent, func(tx pgx.Tx) error {
		if err := s.users.SetForgetCode(ctx, tx, user.ID, code); err != nil {
			return internalError("error storing recovery code", err)
		}
		return s.saveEvent(ctx, tx, domain.EventUserRecoveryRequested, user.ID, domain.UserRecoveryRequestedPayload{
			UserID: user.ID,
			Email:  user.Email,
		})
	})
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendRecoveryCodeEmail(ctx, user.Email, code); err != nil {
		span.RecordError(err)
		return nil, deliveryError("recovery", err)
	}

	mylogger.Info(ctx, s.logger, "Recovery code issued", zap.String("user_id", user.ID))

	return &RecoveryResult{Token: token}, nil
}

// VerifyRecoveryCode compares exactly, with no normalisation. A mismatch leaves
// the stored code untouched.
func (s *authService) VerifyRecoveryCode(ctx context.Context, identity domain.Identity, code string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.VerifyRecoveryCode")
	defer span.End()
	defer func() { s.observe(ctx, "verify_recovery_code", err) }()

	user, err := s.userForIdentity(ctx, identity)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	if !user.HasPendingRecovery() {
		return domain.ErrNoCodeIssued
	}

	if !security.CodesEqual(*user.ForgetCode, code) {
		return domain.ErrInvalidCode
	}

	if err := s.users.ConsumeForgetCode(ctx, user.ID, code); err != nil {
		if errors.Is(err, repository.ErrCodeMismatch) {
			return domain.NewError(domain.KindInvalidCode, "recovery code was replaced", err)
		}
		return internalError("error clearing recovery code", err)
	}

	mylogger.Info(ctx, s.logger, "Recovery code verified", zap.String("user_id", user.ID))

	return nil
}

// ResetPassword stores the new password and invalidates every session of the
// user in the same transaction. Unless RequireVerifiedRecovery is set it does
// not check that VerifyRecoveryCode ran first.
func (s *authService) ResetPassword(ctx context.Context, identity domain.Identity, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ResetPassword")
	defer span.End()
	defer func() { s.observe(ctx, "reset_password", err) }()

	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	user, err := s.userForIdentity(ctx, identity)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	if s.opts.RequireVerifiedRecovery && user.RecoveryState != domain.RecoveryVerified {
		return domain.NewError(domain.KindNoCodeIssued, "recovery code has not been verified", nil)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError("error hashing password", err)
	}

	var invalidated []string
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.users.UpdatePassword(ctx, tx, user.ID, hash, s.opts.RequireVerifiedRecovery); err != nil {
			if errors.Is(err, repository.ErrRecoveryNotVerified) {
				return domain.NewError(domain.KindNoCodeIssued, "recovery code has not been verified", err)
			}
			return internalError("error updating password", err)
		}

		var err error
		invalidated, err = s.sessions.InvalidateAllForUser(ctx, tx, user.ID)
		if err != nil {
			return internalError("error invalidating sessions", err)
		}

		if err := s.users.SetStatus(ctx, tx, user.ID, domain.StatusOffline); err != nil {
			return internalError("error updating status", err)
		}

		return s.saveEvent(ctx, tx, domain.EventUserPasswordReset, user.ID, domain.UserPasswordResetPayload{
			UserID:              user.ID,
			Email:               user.Email,
			InvalidatedSessions: len(invalidated),
		})
	})
	if err != nil {
		return err
	}

	s.metrics.SessionsInvalidated(len(invalidated))
	s.evict(ctx, invalidated...)

	mylogger.Info(
		ctx,
		s.logger,
		"Password reset",
		zap.String("user_id", user.ID),
		zap.Int("invalidated_sessions", len(invalidated)),
	)

	return nil
}

// userForIdentity resolves the account through the token's email claim.
func (s *authService) userForIdentity(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, identity.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindUnauthorized, "account no longer exists", err)
		}
		return nil, internalError("error getting user", err)
	}

	if user.ID != identity.UserID {
		return nil, domain.NewError(domain.KindUnauthorized, "token does not match account", nil)
	}

	return user, nil
}
