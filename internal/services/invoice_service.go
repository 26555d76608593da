package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	invoiceTitle      = "Пополнение баланса"
	invoiceLabel      = "Balance top-up"
	payloadScheme     = "v1"
	payloadTopupKind  = "topup"
	invoiceDescFormat = "Пополнение на %d ₽ (~%d ⭐️)"
)

type Invoice struct {
	InvoiceLink string `json:"invoice_link"`
	Stars       int    `json:"stars"`
	Payload     string `json:"payload"`
}

type InvoiceService struct {
	users    UserStore
	payments PaymentStore
	gateway  StarsGateway
	cfg      *config.Config
	log      *zap.Logger
}

func NewInvoiceService(
	users UserStore,
	payments PaymentStore,
	gateway StarsGateway,
	cfg *config.Config,
	log *zap.Logger,
) *InvoiceService {
	return &InvoiceService{
		users:    users,
		payments: payments,
		gateway:  gateway,
		cfg:      cfg,
		log:      log,
	}
}

// TopupPayload is deterministic so repeated requests land on the same row.
func TopupPayload(telegramUserID, rubAmount int64) string {
	return fmt.Sprintf("%s:%d:%d:%s", payloadTopupKind, telegramUserID, rubAmount, payloadScheme)
}

// StarsForRub = ceil(rub * rate).
func StarsForRub(rubAmount int64, rate decimal.Decimal) int {
	return int(decimal.NewFromInt(rubAmount).Mul(rate).Ceil().IntPart())
}

// CreateInvoice создаёт (или переиспользует PENDING) платёж и выпускает
// ссылку на инвойс в звёздах. Ссылка создаётся после коммита: если Telegram
// недоступен, платёж остаётся PENDING и следующий вызов его подхватит.
func (s *InvoiceService) CreateInvoice(ctx context.Context, telegramUserID, rubAmount int64) (*Invoice, error) {
	if rubAmount < s.cfg.MinTopupRub || rubAmount > s.cfg.MaxTopupRub {
		return nil, ValidationError("amount_rub must be between %d and %d", s.cfg.MinTopupRub, s.cfg.MaxTopupRub)
	}

	user, err := s.users.GetByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	stars := StarsForRub(rubAmount, s.cfg.XTRPerRub)
	if stars <= 0 {
		return nil, ValidationError("stars amount must be positive")
	}

	payload := TopupPayload(telegramUserID, rubAmount)
	rub := decimal.NewFromInt(rubAmount)

	err = s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		p, err := tx.LockByPayload(ctx, payload)
		if errors.Is(err, repositories.ErrNotFound) {
			p = &models.Payment{
				UserID:      user.ID,
				Payload:     payload,
				StarsAmount: stars,
				RubAmount:   rub,
				Currency:    models.CurrencyXTR,
				Status:      models.PaymentStatusPending,
			}
			if err := tx.Insert(ctx, p); err != nil {
				return fmt.Errorf("insert payment: %w", err)
			}
			return tx.Audit(ctx, paymentAudit(&user.ID, models.ActorUser, models.AuditInvoiceCreated, p, map[string]any{
				"stars": stars,
				"rub":   rub.String(),
			}))
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		switch p.Status {
		case models.PaymentStatusPending:
			if p.StarsAmount == stars && p.RubAmount.Equal(rub) {
				return nil
			}
			// курс поменялся — обновляем суммы, пока платёж не оплачен
			if err := tx.UpdateAmounts(ctx, p.ID, rub, stars); err != nil {
				return fmt.Errorf("update amounts: %w", err)
			}
			return tx.Audit(ctx, paymentAudit(&user.ID, models.ActorUser, models.AuditInvoiceRepriced, p, map[string]any{
				"old_stars": p.StarsAmount,
				"stars":     stars,
			}))
		case models.PaymentStatusPaid:
			return ConflictError("invoice already paid")
		default:
			return ConflictError("invoice is %s", p.Status)
		}
	})
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf(invoiceDescFormat, rubAmount, stars)
	link, err := s.gateway.CreateStarsInvoiceLink(ctx, invoiceTitle, description, payload, invoiceLabel, stars)
	if err != nil {
		s.log.Error("failed to create invoice link",
			zap.String("payload", payload),
			zap.Int("stars", stars),
			zap.Error(err),
		)
		return nil, UpstreamError(err, "failed to create invoice link")
	}

	s.log.Info("invoice created",
		zap.Int64("telegram_user_id", telegramUserID),
		zap.String("payload", payload),
		zap.Int64("rub", rubAmount),
		zap.Int("stars", stars),
	)

	return &Invoice{InvoiceLink: link, Stars: stars, Payload: payload}, nil
}

// PaymentStatus returns the caller's own payment; foreign payloads look missing.
func (s *InvoiceService) PaymentStatus(ctx context.Context, telegramUserID int64, payload string) (*models.Payment, error) {
	if payload == "" {
		return nil, ValidationError("payload is required")
	}
	user, err := s.users.GetByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	p, err := s.payments.GetByPayload(ctx, payload)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("payment not found")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p.UserID != user.ID {
		return nil, NotFoundError("payment not found")
	}
	return p, nil
}

func (s *InvoiceService) History(ctx context.Context, telegramUserID int64, limit, offset int) ([]models.Payment, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return s.payments.ListByUser(ctx, user.ID, limit, offset)
}

func paymentAudit(actor *uuid.UUID, actorType, action string, p *models.Payment, meta map[string]any) models.AuditLog {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["payload"] = p.Payload
	meta["status"] = p.Status
	id := p.ID
	return models.AuditLog{
		ActorUserID: actor,
		ActorType:   actorType,
		Action:      action,
		EntityType:  models.EntityPayment,
		EntityID:    &id,
		Meta:        meta,
	}
}
