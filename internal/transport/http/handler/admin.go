package handler

import (
	"github.com/fastplat/auth/internal/service"
	"github.com/fastplat/auth/internal/transport/http/response"
	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	svc service.AuthService
}

func NewAdminHandler(svc service.AuthService) *AdminHandler {
	return &AdminHandler{svc: svc}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	page, err := h.svc.ListUsers(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("limit", 10))
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{
		"users": page.Users,
		"total": page.Total,
		"page":  page.Page,
		"limit": page.Limit,
	})
}

func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	user, err := h.svc.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"user": user})
}

func (h *AdminHandler) ListUserSessions(c *fiber.Ctx) error {
	sessions, err := h.svc.ListUserSessions(c.UserContext(), c.Params("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.OK(c, fiber.StatusOK, fiber.Map{"sessions": sessions})
}
