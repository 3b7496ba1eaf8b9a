package handler

import (
	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/service"
	"github.com/fastplat/auth/internal/transport/http/middleware"
	"github.com/fastplat/auth/internal/transport/http/response"
	"github.com/fastplat/auth/pkg/mylogger"
	"github.com/fastplat/auth/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuthHandler struct {
	svc      service.AuthService
	validate *validator.Validate
	logger   *zap.Logger
}

type RegisterRequest struct {
	UserName        string `json:"userName" validate:"required,min=3,max=20"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"cPassword" validate:"omitempty,eqfield=Password"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	ForgetCode string `json:"forgetCode" validate:"required"`
}

type ResetPasswordRequest struct {
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"cPassword" validate:"omitempty,eqfield=Password"`
}

func NewAuthHandler(svc service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

// parse decodes the body into req and validates it. On failure it has already
// written the response and returns false.
func (h *AuthHandler) parse(c *fiber.Ctx, req any) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		mylogger.Warn(c.UserContext(), h.logger, "body parsing error", zap.String("path", c.Path()), zap.Error(err))
		return false, response.Error(c, domain.NewError(domain.KindValidationFailed, "cannot parse request body", err))
	}

	if err := h.validate.Struct(req); err != nil {
		return false, response.Error(c, domain.NewError(domain.KindValidationFailed, utils.ValidationMessage(err), err))
	}

	return true, nil
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	req := new(RegisterRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	user, err := h.svc.Register(c.UserContext(), service.RegisterInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusCreated, fiber.Map{
		"message": "check your email to activate your account",
		"user":    user,
	})
}

func (h *AuthHandler) ConfirmEmail(c *fiber.Ctx) error {
	user, err := h.svc.Activate(c.UserContext(), c.Params("activationCode"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{
		"message": "account activated, try to login",
		"user":    user,
	})
}

func (h *AuthHandler) ResendActivation(c *fiber.Ctx) error {
	req := new(EmailRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	if err := h.svc.ResendActivation(c.UserContext(), req.Email); err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "activation email sent"})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	req := new(LoginRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	res, err := h.svc.Login(c.UserContext(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{
		"token": res.Token,
		"user":  res.User,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return response.Error(c, domain.ErrUnauthorized)
	}

	if err := h.svc.Logout(c.UserContext(), identity); err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "logged out"})
}

func (h *AuthHandler) ForgetCode(c *fiber.Ctx) error {
	req := new(EmailRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	res, err := h.svc.RequestRecoveryCode(c.UserContext(), req.Email, c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{
		"message": "check your email",
		"token":   res.Token,
	})
}

func (h *AuthHandler) VerifyCode(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return response.Error(c, domain.ErrUnauthorized)
	}

	req := new(VerifyCodeRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	if err := h.svc.VerifyRecoveryCode(c.UserContext(), identity, req.ForgetCode); err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "code verified, set a new password"})
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return response.Error(c, domain.ErrUnauthorized)
	}

	req := new(ResetPasswordRequest)
	if ok, err := h.parse(c, req); !ok {
		return err
	}

	if err := h.svc.ResetPassword(c.UserContext(), identity, req.Password); err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "password changed, try to login"})
}

func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return response.Error(c, domain.ErrUnauthorized)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"identity": identity})
}
