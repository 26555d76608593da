package services

import (
	"context"
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reconcileBatch = 100

// ReconcileService досоздаёт TOPUP для PAID платежей, у которых его нет.
// В норме таких платежей не бывает: статус и запись пишутся в одной транзакции.
type ReconcileService struct {
	payments PaymentStore
	log      *zap.Logger
}

func NewReconcileService(payments PaymentStore, log *zap.Logger) *ReconcileService {
	return &ReconcileService{payments: payments, log: log}
}

// Run returns how many payments were repaired.
func (s *ReconcileService) Run(ctx context.Context) (int, error) {
	ids, err := s.payments.ListPaidWithoutTopup(ctx, reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("list paid without topup: %w", err)
	}

	repaired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		ok, err := s.repair(ctx, id)
		if err != nil {
			s.log.Error("reconcile payment failed", zap.String("payment_id", id.String()), zap.Error(err))
			continue
		}
		if ok {
			repaired++
		}
	}
	if repaired > 0 {
		s.log.Warn("ledger repaired", zap.Int("payments", repaired))
	}
	return repaired, nil
}

func (s *ReconcileService) repair(ctx context.Context, id uuid.UUID) (bool, error) {
	repaired := false
	err := s.payments.InTx(ctx, func(tx repositories.PaymentTx) error {
		p, err := tx.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentStatusPaid {
			return nil
		}
		exists, err := tx.TopupExists(ctx, p.ID)
		if err != nil || exists {
			return err
		}

		paymentID := p.ID
		comment := fmt.Sprintf("Top-up via Stars #%s (reconcile)", p.ID)
		if err := tx.InsertLedgerEntry(ctx, &models.LedgerEntry{
			UserID:    p.UserID,
			PaymentID: &paymentID,
			EntryType: models.LedgerTypeTopup,
			AmountRub: p.RubAmount,
			Comment:   &comment,
		}); err != nil {
			return err
		}
		repaired = true
		return tx.Audit(ctx, paymentAudit(nil, models.ActorSystem, models.AuditLedgerRepaired, p, nil))
	})
	return repaired, err
}
