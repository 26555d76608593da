package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/events"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const preCheckoutDeclineMessage = "Invoice is not available"

// Outcome describes what settlement did with a successful_payment update.
type Outcome string

const (
	OutcomeCredited          Outcome = "credited"
	OutcomeReplayed          Outcome = "replayed"
	OutcomeAmountMismatch    Outcome = "amount_mismatch"
	OutcomeIgnoredMalformed  Outcome = "ignored_malformed"
	OutcomeIgnoredUser       Outcome = "ignored_unknown_user"
	OutcomeIgnoredPayload    Outcome = "ignored_unknown_payload"
	OutcomeIgnoredMismatch   Outcome = "ignored_user_mismatch"
	OutcomeIgnoredNotPending Outcome = "ignored_not_pending"
	// charge id уже записан на другой платёж
	OutcomeIgnoredDuplicateCharge Outcome = "ignored_duplicate_charge"
)

// Ignored reports whether the update was acknowledged without any write.
func (o Outcome) Ignored() bool {
	switch o {
	case OutcomeIgnoredMalformed, OutcomeIgnoredUser, OutcomeIgnoredPayload,
		OutcomeIgnoredMismatch, OutcomeIgnoredNotPending, OutcomeIgnoredDuplicateCharge:
		return true
	}
	return false
}

type SuccessfulPayment struct {
	Payload        string
	TelegramUserID int64
	ChargeID       string
	TotalStars     int
	Currency       string
}

type SettlementService struct {
	users     UserStore
	payments  PaymentStore
	gateway   StarsGateway
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewSettlementService(
	users UserStore,
	payments PaymentStore,
	gateway StarsGateway,
	publisher events.Publisher,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		users:     users,
		payments:  payments,
		gateway:   gateway,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// PreCheckout одобряет оплату только для существующего PENDING платежа.
// Ошибка возвращается лишь если Telegram не принял ответ.
func (s *SettlementService) PreCheckout(ctx context.Context, queryID, payload string) (bool, error) {
	approve := false
	p, err := s.payments.GetByPayload(ctx, payload)
	switch {
	case err == nil:
		approve = p.Status == models.PaymentStatusPending
	case errors.Is(err, repositories.ErrNotFound):
	default:
		s.log.Error("pre-checkout lookup failed", zap.String("payload", payload), zap.Error(err))
	}

	msg := ""
	if !approve {
		msg = preCheckoutDeclineMessage
	}
	if err := s.gateway.AnswerPreCheckout(ctx, queryID, approve, msg); err != nil {
		return approve, UpstreamError(err, "failed to answer pre-checkout query")
	}

	s.log.Info("pre-checkout answered",
		zap.String("payload", payload),
		zap.Bool("ok", approve),
	)
	return approve, nil
}

// SettleSuccessfulPayment применяет successful_payment. Повторная доставка
// того же апдейта ничего не меняет, кроме досоздания отсутствующего TOPUP.
// Ошибка возвращается только при сбое БД: тогда транзакция откатилась и
// Telegram может повторить доставку.
func (s *SettlementService) SettleSuccessfulPayment(ctx context.Context, sp SuccessfulPayment) (Outcome, error) {
	if sp.Payload == "" || sp.TelegramUserID == 0 || sp.TotalStars <= 0 {
		s.log.Warn("malformed successful_payment ignored",
			zap.String("payload", sp.Payload),
			zap.Int64("telegram_user_id", sp.TelegramUserID),
		)
		return OutcomeIgnoredMalformed, nil
	}

	user, err := s.users.GetByTelegramID(ctx, sp.TelegramUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.log.Warn("successful_payment from unknown user",
				zap.Int64("telegram_user_id", sp.TelegramUserID),
				zap.String("payload", sp.Payload),
			)
			return OutcomeIgnoredUser, nil
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	var (
		outcome Outcome
		payment models.Payment
	)
	err = s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		p, err := tx.LockByPayload(ctx, sp.Payload)
		if errors.Is(err, repositories.ErrNotFound) {
			outcome = OutcomeIgnoredPayload
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}

		if p.UserID != user.ID {
			outcome = OutcomeIgnoredMismatch
			return nil
		}

		switch p.Status {
		case models.PaymentStatusPaid:
			outcome = OutcomeReplayed
			return s.ensureTopup(ctx, tx, p, "Top-up via Stars (idemp)")
		case models.PaymentStatusPending:
		default:
			outcome = OutcomeIgnoredNotPending
			return nil
		}

		chargeID := sp.ChargeID
		if sp.TotalStars < p.StarsAmount {
			reason := fmt.Sprintf("Stars mismatch: expected %d, got %d", p.StarsAmount, sp.TotalStars)
			if err := tx.MarkFailed(ctx, p.ID, sp.ChargeID, reason); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			p.Status, p.TelegramChargeID, p.FailedReason = models.PaymentStatusFailed, &chargeID, &reason
			payment = *p
			outcome = OutcomeAmountMismatch
			return tx.Audit(ctx, paymentAudit(nil, models.ActorTelegram, models.AuditPaymentFailed, p, map[string]any{
				"reason":    reason,
				"charge_id": sp.ChargeID,
			}))
		}

		paidAt := s.now()
		if err := tx.MarkPaid(ctx, p.ID, sp.ChargeID, paidAt); err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		p.Status, p.TelegramChargeID, p.PaidAt = models.PaymentStatusPaid, &chargeID, &paidAt
		p.FailedReason, p.CanceledAt = nil, nil
		payment = *p
		if err := s.ensureTopup(ctx, tx, p, fmt.Sprintf("Top-up via Stars #%s", p.ID)); err != nil {
			return err
		}
		outcome = OutcomeCredited
		return tx.Audit(ctx, paymentAudit(nil, models.ActorTelegram, models.AuditPaymentPaid, p, map[string]any{
			"charge_id": sp.ChargeID,
			"stars":     sp.TotalStars,
			"rub":       p.RubAmount.String(),
		}))
	})
	if errors.Is(err, repositories.ErrDuplicateChargeID) {
		// повтор не поможет: ack, разбираться вручную
		s.log.Error("successful_payment with reused charge id",
			zap.String("payload", sp.Payload),
			zap.String("charge_id", sp.ChargeID),
			zap.Int64("telegram_user_id", sp.TelegramUserID),
			zap.Error(err),
		)
		return OutcomeIgnoredDuplicateCharge, nil
	}
	if err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.String("outcome", string(outcome)),
		zap.String("payload", sp.Payload),
		zap.Int64("telegram_user_id", sp.TelegramUserID),
		zap.Int("stars", sp.TotalStars),
	}
	if outcome.Ignored() {
		s.log.Warn("successful_payment ignored", fields...)
		return outcome, nil
	}
	s.log.Info("successful_payment processed", fields...)

	switch outcome {
	case OutcomeCredited:
		s.publish(ctx, events.EventPaymentSettled, user.ID, sp.TelegramUserID, &payment)
	case OutcomeAmountMismatch:
		s.publish(ctx, events.EventPaymentFailed, user.ID, sp.TelegramUserID, &payment)
	}
	return outcome, nil
}

// ensureTopup вставляет TOPUP, если для платежа его ещё нет.
func (s *SettlementService) ensureTopup(ctx context.Context, tx repositories.PaymentTx, p *models.Payment, comment string) error {
	exists, err := tx.TopupExists(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("check topup: %w", err)
	}
	if exists {
		return nil
	}
	paymentID := p.ID
	return tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
		UserID:    p.UserID,
		PaymentID: &paymentID,
		EntryType: models.LedgerTypeTopup,
		AmountRub: p.RubAmount,
		Comment:   &comment,
	})
}

func (s *SettlementService) publish(ctx context.Context, eventType string, userID uuid.UUID, tgID int64, p *models.Payment) {
	err := publishPaymentEvent(ctx, s.publisher, eventType, userID, tgID, map[string]any{
		"payment_id": p.ID.String(),
		"payload":    p.Payload,
		"status":     p.Status,
		"rub_amount": p.RubAmount.StringFixed(2),
		"stars":      p.StarsAmount,
	})
	if err != nil {
		s.log.Warn("failed to publish payment event", zap.String("type", eventType), zap.Error(err))
	}
}
