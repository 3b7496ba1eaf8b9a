package service

import (
	"context"
	"errors"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/repository"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Login checks the password before the confirmation flag, so an unconfirmed
// account only shows up as AccountNotActivated to someone holding its password.
// Unknown emails and wrong passwords are indistinguishable.
func (s *authService) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer span.End()
	defer func() { s.observe(ctx, "login", err) }()

	in.Email = normalizeEmail(in.Email)
	if err := s.checkStruct(in); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.DummyVerify(in.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, internalError("error getting user", err)
	}

	if !user.HasPassword() {
		s.hasher.DummyVerify(in.Password)
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, *user.PasswordHash)
	if err != nil {
		return nil, internalError("error verifying password", err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.IsConfirmed {
		return nil, domain.ErrAccountNotActivated
	}

	span.SetAttributes(attribute.String("user.id", user.ID))

	token, err := s.issueSession(ctx, user, domain.PurposeLogin, in.UserAgent, func(tx pgx.Tx) error {
		if err := s.users.SetStatus(ctx, tx, user.ID, domain.StatusOnline); err != nil {
			return internalError("error updating status", err)
		}
		return s.saveEvent(ctx, tx, domain.EventUserLoggedIn, user.ID, domain.UserLoggedInPayload{
			UserID:    user.ID,
			UserAgent: in.UserAgent,
		})
	})
	if err != nil {
		return nil, err
	}

	user.Status = domain.StatusOnline

	mylogger.Info(ctx, s.logger, "User logged in", zap.String("user_id", user.ID))

	return &LoginResult{Token: token, User: user}, nil
}

// issueSession signs a token and records it in the ledger inside one
// transaction together with whatever extra writes the caller needs. The token
// is only returned after commit.
func (s *authService) issueSession(
	ctx context.Context,
	user *domain.User,
	purpose domain.SessionPurpose,
	userAgent string,
	extra func(tx pgx.Tx) error,
) (string, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return "", internalError("error issuing token", err)
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		session := &domain.SessionToken{
			Token:     token,
			UserID:    user.ID,
			UserAgent: userAgent,
			Purpose:   purpose,
			IsValid:   true,
			ExpiresAt: expiresAt,
		}
		if err := s.sessions.Create(ctx, tx, session); err != nil {
			return internalError("error saving session", err)
		}
		return extra(tx)
	})
	if err != nil {
		return "", err
	}

	return token, nil
}

func (s *authService) Logout(ctx context.Context, identity domain.Identity) (err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer span.End()
	defer func() { s.observe(ctx, "logout", err) }()

	span.SetAttributes(attribute.String("user.id", identity.UserID))

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.sessions.Invalidate(ctx, tx, identity.Token); err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return domain.NewError(domain.KindUnauthorized, "session is not active", err)
			}
			return internalError("error invalidating session", err)
		}

		if err := s.users.SetStatus(ctx, tx, identity.UserID, domain.StatusOffline); err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return internalError("error updating status", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.SessionsInvalidated(1)
	s.evict(ctx, identity.Token)

	return nil
}

// Authenticate resolves a bearer token into an identity. The signature must
// verify and the ledger row must be present, valid, unexpired and owned by the
// token's subject. Role and premium come from the current user row, not from
// the claims, so a demotion applies to tokens already issued.
func (s *authService) Authenticate(ctx context.Context, token string) (*domain.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Authenticate")
	defer span.End()

	if token == "" {
		return nil, domain.NewError(domain.KindUnauthorized, "missing token", nil)
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, domain.NewError(domain.KindUnauthorized, "invalid token", err)
	}

	session, err := s.lookupSession(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.UserID != claims.UserID || !session.Active(s.now()) {
		return nil, domain.NewError(domain.KindUnauthorized, "session is no longer valid", nil)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindUnauthorized, "unknown user", err)
		}
		return nil, internalError("error getting user", err)
	}

	return &domain.Identity{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		Premium: user.IsPremium,
		Token:   token,
		Purpose: session.Purpose,
	}, nil
}

func (s *authService) lookupSession(ctx context.Context, token string) (*domain.SessionToken, error) {
	cached, err := s.cache.Get(ctx, token)
	if err != nil {
		mylogger.Warn(ctx, s.logger, "Session cache read failed", zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, domain.NewError(domain.KindUnauthorized, "unknown session", err)
		}
		return nil, internalError("error getting session", err)
	}

	if session.Active(s.now()) {
		if err := s.cache.Put(ctx, session); err != nil {
			mylogger.Warn(ctx, s.logger, "Session cache write failed", zap.Error(err))
		}
	}

	return session, nil
}

func (s *authService) evict(ctx context.Context, tokens ...string) {
	if err := s.cache.Evict(ctx, tokens...); err != nil {
		mylogger.Warn(ctx, s.logger, "Session cache evict failed", zap.Int("tokens", len(tokens)), zap.Error(err))
	}
}
