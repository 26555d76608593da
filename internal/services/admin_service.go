package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxAdjustmentRub = 100000

type PaymentDetails struct {
	Payment *models.Payment   `json:"payment"`
	Audit   []models.AuditLog `json:"audit"`
}

// AdminService — операции поддержки: просмотр платежа и ручная корректировка баланса.
type AdminService struct {
	users    UserStore
	payments PaymentStore
	ledger   LedgerStore
	audit    AuditStore
	log      *zap.Logger
}

func NewAdminService(
	users UserStore,
	payments PaymentStore,
	ledger LedgerStore,
	audit AuditStore,
	log *zap.Logger,
) *AdminService {
	return &AdminService{
		users:    users,
		payments: payments,
		ledger:   ledger,
		audit:    audit,
		log:      log,
	}
}

func (s *AdminService) PaymentDetails(ctx context.Context, paymentID uuid.UUID) (*PaymentDetails, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("payment not found")
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	logs, err := s.audit.GetByEntity(ctx, models.EntityPayment, p.ID, 50, 0)
	if err != nil {
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return &PaymentDetails{Payment: p, Audit: logs}, nil
}

// AdjustBalance добавляет в ledger запись ADJUSTMENT. Отрицательная сумма списывает.
func (s *AdminService) AdjustBalance(ctx context.Context, adminID uuid.UUID, telegramUserID int64, amount decimal.Decimal, comment string) (*models.LedgerEntry, error) {
	if amount.IsZero() {
		return nil, ValidationError("amount_rub must not be zero")
	}
	if amount.Abs().GreaterThan(decimal.NewFromInt(maxAdjustmentRub)) {
		return nil, ValidationError("amount_rub must not exceed %d by absolute value", maxAdjustmentRub)
	}
	if comment == "" {
		return nil, ValidationError("comment is required")
	}

	user, err := s.users.GetByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFoundError("user not found")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	entry := &models.LedgerEntry{
		UserID:    user.ID,
		EntryType: models.LedgerTypeAdjustment,
		AmountRub: amount.Round(2),
		Comment:   &comment,
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &adminID,
		ActorType:   models.ActorAdmin,
		Action:      models.AuditBalanceAdjusted,
		EntityType:  models.EntityLedgerEntry,
		EntityID:    &entry.ID,
		Meta:        map[string]any{"amount_rub": entry.AmountRub.StringFixed(2), "telegram_user_id": telegramUserID},
	})

	s.log.Info("balance adjusted",
		zap.String("admin_id", adminID.String()),
		zap.Int64("telegram_user_id", telegramUserID),
		zap.String("amount", entry.AmountRub.StringFixed(2)),
	)
	return entry, nil
}
