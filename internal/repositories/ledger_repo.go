package repositories

import (
	"context"
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerRepo — только чтение и вставка, wallet_ledger не обновляется.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func insertLedgerEntry(ctx context.Context, q querier, e *models.LedgerEntry) error {
	return q.QueryRow(ctx, `
		INSERT INTO wallet_ledger (user_id, payment_id, entry_type, amount_rub, comment)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING id, created_at
	`, e.UserID, e.PaymentID, e.EntryType, e.AmountRub.StringFixed(2), e.Comment).Scan(&e.ID, &e.CreatedAt)
}

// Append writes an entry outside of a payment transaction (adjustments, bonuses).
func (r *LedgerRepo) Append(ctx context.Context, e *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, r.pool, e)
}

// Balance is the sum of all entries of the user, zero when there are none.
func (r *LedgerRepo) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum string
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_rub), 0)::text FROM wallet_ledger WHERE user_id = $1
	`, userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(sum)
}

func (r *LedgerRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, payment_id, entry_type, amount_rub::text, comment, created_at
		FROM wallet_ledger WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var (
			e   models.LedgerEntry
			amt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.PaymentID, &e.EntryType, &amt, &e.Comment, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.AmountRub, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
