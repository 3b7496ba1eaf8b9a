package middleware

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/transport/http/response"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const identityKey = "identity"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Identity, error)
}

// NewAuthMiddleware resolves the bearer token and stores the identity in
// c.Locals for handlers and for other modules mounted behind it.
func NewAuthMiddleware(auth Authenticator, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return response.Error(c, domain.NewError(domain.KindUnauthorized, "missing or malformed bearer token", nil))
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		identity, err := auth.Authenticate(ctx, token)
		if err != nil {
			mylogger.Debug(ctx, logger, "Authentication rejected", zap.String("path", c.Path()), zap.Error(err))
			return response.Error(c, err)
		}

		c.Locals(identityKey, *identity)
		return c.Next()
	}
}

// RequireRole must run after NewAuthMiddleware.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return response.Error(c, domain.ErrUnauthorized)
		}

		if identity.Role != role {
			return response.Error(c, domain.NewError(domain.KindForbidden, "insufficient role", nil))
		}

		return c.Next()
	}
}

// RequirePurpose rejects tokens whose ledger purpose is not listed. Must run
// after NewAuthMiddleware.
func RequirePurpose(purposes ...domain.SessionPurpose) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := IdentityFrom(c)
		if !ok {
			return response.Error(c, domain.ErrUnauthorized)
		}

		if !slices.Contains(purposes, identity.Purpose) {
			return response.Error(c, domain.NewError(domain.KindForbidden, "token cannot be used for this request", nil))
		}

		return c.Next()
	}
}

func IdentityFrom(c *fiber.Ctx) (domain.Identity, bool) {
	identity, ok := c.Locals(identityKey).(domain.Identity)
	return identity, ok && identity.UserID != ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
