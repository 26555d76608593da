package handlers

import (
	"context"
	"encoding/json"

	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/go-telegram/bot/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaymentSettler interface {
	PreCheckout(ctx context.Context, queryID, payload string) (bool, error)
	SettleSuccessfulPayment(ctx context.Context, sp services.SuccessfulPayment) (services.Outcome, error)
}

// WebhookHandler принимает апдейты Telegram. Отвечает {ok:true} на всё,
// кроме сбоев БД: на 5xx Telegram повторит доставку.
type WebhookHandler struct {
	settler PaymentSettler
	log     *zap.Logger
}

func NewWebhookHandler(settler PaymentSettler, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{settler: settler, log: log}
}

func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	var update models.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		h.log.Warn("malformed telegram update", zap.Error(err))
		return ack(c)
	}
	ctx := c.UserContext()

	if q := update.PreCheckoutQuery; q != nil {
		if _, err := h.settler.PreCheckout(ctx, q.ID, q.InvoicePayload); err != nil {
			h.log.Error("pre-checkout answer failed",
				zap.Int64("update_id", update.ID),
				zap.String("payload", q.InvoicePayload),
				zap.Error(err),
			)
		}
		return ack(c)
	}

	if msg := update.Message; msg != nil && msg.SuccessfulPayment != nil {
		sp := msg.SuccessfulPayment
		var tgUserID int64
		if msg.From != nil {
			tgUserID = msg.From.ID
		}
		_, err := h.settler.SettleSuccessfulPayment(ctx, services.SuccessfulPayment{
			Payload:        sp.InvoicePayload,
			TelegramUserID: tgUserID,
			ChargeID:       sp.TelegramPaymentChargeID,
			TotalStars:     sp.TotalAmount,
			Currency:       sp.Currency,
		})
		if err != nil {
			h.log.Error("settlement failed",
				zap.Int64("update_id", update.ID),
				zap.String("payload", sp.InvoicePayload),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false})
		}
		return ack(c)
	}

	h.log.Debug("telegram update ignored", zap.Int64("update_id", update.ID))
	return ack(c)
}

func ack(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}
