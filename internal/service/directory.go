package service

import (
	"context"
	"errors"
	"math"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

func (s *authService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.GetUser")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.NewError(domain.KindValidationFailed, "id must be a uuid", err)
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, domain.NewError(domain.KindNotFound, "user not found", err)
		}
		return nil, internalError("error getting user", err)
	}

	return user, nil
}

// ListUsers pages through accounts, newest first. page starts at 1.
func (s *authService) ListUsers(ctx context.Context, page, limit int) (*UserPage, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ListUsers")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)

	if page > math.MaxInt/limit {
		return nil, domain.NewError(domain.KindValidationFailed, "page is out of range", nil)
	}

	users, total, err := s.users.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, internalError("error listing users", err)
	}

	return &UserPage{Users: users, Total: total, Page: page, Limit: limit}, nil
}

// ListUserSessions returns every ledger row of the user, oldest first,
// including invalidated ones.
func (s *authService) ListUserSessions(ctx context.Context, userID string) ([]*domain.SessionToken, error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.ListUserSessions")
	defer span.End()

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, internalError("error listing sessions", err)
	}

	return sessions, nil
}
