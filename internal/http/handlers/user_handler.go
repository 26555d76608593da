package handlers

import (
	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type UserHandler struct {
	profiles ProfileProvider
	log      *zap.Logger
}

func NewUserHandler(profiles ProfileProvider, log *zap.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	profile, err := h.profiles.Profile(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: profile})
}

func (h *UserHandler) GetLedger(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	entries, err := h.profiles.Ledger(c.UserContext(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: entries})
}
