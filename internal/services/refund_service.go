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

const refundResumeBatch = 50

type RefundService struct {
	users     UserStore
	payments  PaymentStore
	gateway   StarsGateway
	publisher events.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewRefundService(
	users UserStore,
	payments PaymentStore,
	gateway StarsGateway,
	publisher events.Publisher,
	log *zap.Logger,
) *RefundService {
	return &RefundService{
		users:     users,
		payments:  payments,
		gateway:   gateway,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// pendingRefund — всё, что нужно для вызова Telegram и второй транзакции.
type pendingRefund struct {
	refund         models.Refund
	payment        models.Payment
	telegramUserID int64
	actorID        *uuid.UUID
	actorType      string
}

// Refund возвращает звёзды за оплаченный платёж.
//
// 1. Транзакция: блокируем PAID платёж, создаём refund REQUESTED.
// 2. Вызов refundStarPayment вне транзакции.
// 3. Транзакция: OK + REFUNDED + отрицательная запись REFUND, либо FAILED.
//
// Шаги 2 и 3 не зависят от отмены запроса. Если шаг 3 не прошёл, возврат
// остаётся REQUESTED и его доводит ResumeStale.
func (s *RefundService) Refund(ctx context.Context, adminID uuid.UUID, paymentID uuid.UUID) (*models.Refund, error) {
	pr := pendingRefund{actorID: &adminID, actorType: models.ActorAdmin}
	err := s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		p, err := tx.LockByID(ctx, paymentID)
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFoundError("payment not found")
		}
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		if p.Status != models.PaymentStatusPaid {
			return ConflictError("payment is %s, only PAID can be refunded", p.Status)
		}
		if p.TelegramChargeID == nil || *p.TelegramChargeID == "" {
			return ConflictError("payment has no telegram charge id")
		}

		open, err := tx.OpenRefundExists(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("check refunds: %w", err)
		}
		if open {
			return ConflictError("refund already in progress")
		}

		user, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		pr.refund = models.Refund{
			PaymentID:        p.ID,
			UserID:           p.UserID,
			TelegramChargeID: *p.TelegramChargeID,
			StarsAmount:      p.StarsAmount,
			RubAmount:        p.RubAmount,
			Status:           models.RefundStatusRequested,
		}
		if err := tx.InsertRefund(ctx, &pr.refund); err != nil {
			return fmt.Errorf("insert refund: %w", err)
		}
		pr.payment = *p
		pr.telegramUserID = user.TelegramUserID
		return tx.Audit(ctx, paymentAudit(&adminID, models.ActorAdmin, models.AuditRefundRequested, p, map[string]any{
			"refund_id": pr.refund.ID.String(),
		}))
	})
	if err != nil {
		return nil, err
	}

	return s.complete(context.WithoutCancel(ctx), pr)
}

// ResumeStale доводит возвраты, застрявшие в REQUESTED дольше olderThan.
// Telegram повторный refund для уже возвращённого charge отклоняет как
// CHARGE_ALREADY_REFUNDED, gateway считает это успехом.
func (s *RefundService) ResumeStale(ctx context.Context, olderThan time.Duration) (int, error) {
	ids, err := s.payments.ListStaleRefunds(ctx, s.now().Add(-olderThan), refundResumeBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale refunds: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		pr, ok, err := s.loadStale(ctx, id)
		if err != nil {
			s.log.Error("load stale refund failed", zap.String("refund_id", id.String()), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		// FAILED после повторного вызова тоже итог: админ может запустить возврат заново
		if _, err := s.complete(ctx, pr); err != nil && KindOf(err) != KindUpstream {
			s.log.Error("resume refund failed", zap.String("refund_id", id.String()), zap.Error(err))
			continue
		}
		resumed++
	}
	if resumed > 0 {
		s.log.Warn("stale refunds resumed", zap.Int("refunds", resumed))
	}
	return resumed, nil
}

func (s *RefundService) loadStale(ctx context.Context, id uuid.UUID) (pendingRefund, bool, error) {
	pr := pendingRefund{actorType: models.ActorSystem}
	found := false
	err := s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		rf, err := tx.LockRefund(ctx, id)
		if err != nil {
			return fmt.Errorf("lock refund: %w", err)
		}
		if rf.Status != models.RefundStatusRequested {
			return nil
		}
		p, err := tx.LockByID(ctx, rf.PaymentID)
		if err != nil {
			return fmt.Errorf("lock payment: %w", err)
		}
		user, err := s.users.GetByID(ctx, p.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		pr.refund, pr.payment, pr.telegramUserID = *rf, *p, user.TelegramUserID
		found = true
		return nil
	})
	return pr, found, err
}

// complete вызывает Telegram и фиксирует результат второй транзакцией.
func (s *RefundService) complete(ctx context.Context, pr pendingRefund) (*models.Refund, error) {
	refund, payment := pr.refund, pr.payment
	callErr := s.gateway.RefundStarPayment(ctx, pr.telegramUserID, refund.TelegramChargeID)

	err := s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		rf, err := tx.LockRefund(ctx, refund.ID)
		if err != nil {
			return fmt.Errorf("lock refund: %w", err)
		}
		at := s.now()

		if callErr != nil {
			msg := callErr.Error()
			if err := tx.FinishRefund(ctx, rf.ID, models.RefundStatusFailed, &msg, at); err != nil {
				return fmt.Errorf("finish refund: %w", err)
			}
			rf.Status, rf.ErrorMessage, rf.ProcessedAt = models.RefundStatusFailed, &msg, &at
			refund = *rf
			return tx.Audit(ctx, paymentAudit(pr.actorID, pr.actorType, models.AuditRefundFinished, &payment, map[string]any{
				"refund_id": rf.ID.String(),
				"result":    models.RefundStatusFailed,
				"error":     msg,
			}))
		}

		if err := tx.FinishRefund(ctx, rf.ID, models.RefundStatusOK, nil, at); err != nil {
			return fmt.Errorf("finish refund: %w", err)
		}
		if err := tx.MarkRefunded(ctx, payment.ID); err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}
		paymentID := payment.ID
		comment := fmt.Sprintf("Refund via Stars #%s", payment.ID)
		if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
			UserID:    payment.UserID,
			PaymentID: &paymentID,
			EntryType: models.LedgerTypeRefund,
			AmountRub: payment.RubAmount.Neg(),
			Comment:   &comment,
		}); err != nil {
			return fmt.Errorf("insert refund entry: %w", err)
		}
		payment.Status = models.PaymentStatusRefunded
		rf.Status, rf.ProcessedAt = models.RefundStatusOK, &at
		refund = *rf
		return tx.Audit(ctx, paymentAudit(pr.actorID, pr.actorType, models.AuditRefundFinished, &payment, map[string]any{
			"refund_id": rf.ID.String(),
			"result":    models.RefundStatusOK,
		}))
	})
	if err != nil {
		s.log.Error("refund left REQUESTED",
			zap.String("payment_id", payment.ID.String()),
			zap.String("refund_id", refund.ID.String()),
			zap.Bool("telegram_ok", callErr == nil),
			zap.Error(err),
		)
		return nil, err
	}

	if callErr != nil {
		s.log.Error("star refund failed",
			zap.String("payment_id", payment.ID.String()),
			zap.String("refund_id", refund.ID.String()),
			zap.Error(callErr),
		)
		return &refund, UpstreamError(callErr, "telegram refund failed")
	}

	s.log.Info("star payment refunded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("refund_id", refund.ID.String()),
		zap.String("actor", pr.actorType),
		zap.Int("stars", payment.StarsAmount),
	)
	err = publishPaymentEvent(ctx, s.publisher, events.EventPaymentRefunded, payment.UserID, pr.telegramUserID, map[string]any{
		"payment_id": payment.ID.String(),
		"status":     payment.Status,
		"rub_amount": payment.RubAmount.StringFixed(2),
		"stars":      payment.StarsAmount,
	})
	if err != nil {
		s.log.Warn("failed to publish refund event", zap.Error(err))
	}
	return &refund, nil
}
