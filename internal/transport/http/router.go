package http

import (
	"errors"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/metrics"
	"github.com/fastplat/auth/internal/service"
	"github.com/fastplat/auth/internal/transport/http/handler"
	"github.com/fastplat/auth/internal/transport/http/middleware"
	"github.com/fastplat/auth/internal/transport/http/response"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth  *handler.AuthHandler
	Admin *handler.AdminHandler
}

type AppConfig struct {
	ReadTimeout  time.Duration
	LimitMax     int
	LimitWindow  time.Duration
	DisableLimit bool
}

func NewHandlers(svc service.AuthService, logger *zap.Logger) *Handlers {
	return &Handlers{
		Auth:  handler.NewAuthHandler(svc, logger),
		Admin: handler.NewAdminHandler(svc),
	}
}

// NewApp builds the fiber app with the shared middleware stack. Routes are
// added by RegisterRoutes.
func NewApp(cfg AppConfig, m *metrics.Metrics) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{
					"success": false,
					"error":   statusKind(fe.Code),
					"message": fe.Message,
				})
			}
			return response.Error(c, err)
		},
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.NewMetricsMiddleware(m))

	if !cfg.DisableLimit {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.LimitMax,
			Expiration: cfg.LimitWindow,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"success": false,
					"error":   "TooManyRequests",
					"message": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}

func RegisterRoutes(app *fiber.App, h *Handlers, auth middleware.Authenticator, logger *zap.Logger) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("Auth Service is alive!")
	})

	requireAuth := middleware.NewAuthMiddleware(auth, logger)
	loginOnly := middleware.RequirePurpose(domain.PurposeLogin)
	recovery := middleware.RequirePurpose(domain.PurposeRecovery, domain.PurposeLogin)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", h.Auth.Register)
	authGroup.Get("/confirmEmail/:activationCode", h.Auth.ConfirmEmail)
	authGroup.Post("/resend-activation", h.Auth.ResendActivation)
	authGroup.Post("/login", h.Auth.Login)
	authGroup.Post("/logout", requireAuth, loginOnly, h.Auth.Logout)
	authGroup.Patch("/forgetCode", h.Auth.ForgetCode)
	authGroup.Patch("/verifyCode", requireAuth, recovery, h.Auth.VerifyCode)
	authGroup.Patch("/resetPassword", requireAuth, recovery, h.Auth.ResetPassword)

	api := app.Group("/api", requireAuth, loginOnly)
	api.Get("/me", h.Auth.GetMe)

	admin := api.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.Get("/users", h.Admin.ListUsers)
	admin.Get("/users/:id", h.Admin.GetUser)
	admin.Get("/users/:id/sessions", h.Admin.ListUserSessions)
}

func statusKind(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return string(domain.KindNotFound)
	case fiber.StatusMethodNotAllowed:
		return "MethodNotAllowed"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return string(domain.KindValidationFailed)
	default:
		return string(domain.KindInternal)
	}
}
