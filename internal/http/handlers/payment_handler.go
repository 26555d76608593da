package handlers

import (
	"context"

	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/middleware"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type InvoiceIssuer interface {
	CreateInvoice(ctx context.Context, telegramUserID, rubAmount int64) (*services.Invoice, error)
	PaymentStatus(ctx context.Context, telegramUserID int64, payload string) (*models.Payment, error)
	History(ctx context.Context, telegramUserID int64, limit, offset int) ([]models.Payment, error)
}

type PaymentHandler struct {
	invoices InvoiceIssuer
	log      *zap.Logger
}

func NewPaymentHandler(invoices InvoiceIssuer, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{invoices: invoices, log: log}
}

func (h *PaymentHandler) CreateStarsInvoice(c *fiber.Ctx) error {
	var req dto.CreateInvoiceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	inv, err := h.invoices.CreateInvoice(c.UserContext(), middleware.GetTelegramUserID(c), req.AmountRub)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.InvoiceResponse{
		InvoiceLink: inv.InvoiceLink,
		Stars:       inv.Stars,
		Payload:     inv.Payload,
	})
}

func (h *PaymentHandler) GetStatus(c *fiber.Ctx) error {
	p, err := h.invoices.PaymentStatus(c.UserContext(), middleware.GetTelegramUserID(c), c.Query("payload"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: p})
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	payments, err := h.invoices.History(c.UserContext(), middleware.GetTelegramUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payments})
}
