package handlers

import (
	"context"

	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/middleware"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Refunder interface {
	Refund(ctx context.Context, adminID, paymentID uuid.UUID) (*models.Refund, error)
}

type AdminOperations interface {
	PaymentDetails(ctx context.Context, paymentID uuid.UUID) (*services.PaymentDetails, error)
	AdjustBalance(ctx context.Context, adminID uuid.UUID, telegramUserID int64, amount decimal.Decimal, comment string) (*models.LedgerEntry, error)
}

type AdminHandler struct {
	refunds Refunder
	admin   AdminOperations
	log     *zap.Logger
}

func NewAdminHandler(refunds Refunder, admin AdminOperations, log *zap.Logger) *AdminHandler {
	return &AdminHandler{refunds: refunds, admin: admin, log: log}
}

func (h *AdminHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid payment id")
	}
	details, err := h.admin.PaymentDetails(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: details})
}

func (h *AdminHandler) RefundPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid payment id")
	}
	refund, err := h.refunds.Refund(c.UserContext(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: refund})
}

func (h *AdminHandler) AdjustBalance(c *fiber.Ctx) error {
	var req dto.AdjustBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	amount, err := decimal.NewFromString(req.AmountRub)
	if err != nil {
		return badRequest(c, "invalid amount_rub")
	}
	entry, err := h.admin.AdjustBalance(c.UserContext(), middleware.GetUserID(c), req.TelegramUserID, amount, req.Comment)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: entry})
}
