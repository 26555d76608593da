package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const maxTxAttempts = 3

// PaymentTx is the set of writes allowed inside one serializable
// payment transaction. Every Mark* call is guarded by the current status
// and returns ErrStaleState when the row has moved on.
type PaymentTx interface {
	LockByPayload(ctx context.Context, payload string) (*models.Payment, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	Insert(ctx context.Context, p *models.Payment) error
	UpdateAmounts(ctx context.Context, id uuid.UUID, rub decimal.Decimal, stars int) error
	MarkPaid(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, chargeID, reason string) error
	MarkRefunded(ctx context.Context, id uuid.UUID) error

	TopupExists(ctx context.Context, paymentID uuid.UUID) (bool, error)
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error

	OpenRefundExists(ctx context.Context, paymentID uuid.UUID) (bool, error)
	InsertRefund(ctx context.Context, r *models.Refund) error
	LockRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error)
	FinishRefund(ctx context.Context, id uuid.UUID, status string, errMsg *string, at time.Time) error

	Audit(ctx context.Context, entry models.AuditLog) error
}

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// InTx runs fn in a SERIALIZABLE transaction and retries it on
// serialization failures and unique-constraint races.
func (r *PaymentRepo) InTx(ctx context.Context, fn func(tx PaymentTx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
			return fn(&paymentTx{tx: tx})
		})
		if err == nil || !IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("payment tx failed after %d attempts: %w", maxTxAttempts, err)
}

const paymentColumns = `id, user_id, payload, stars_amount, rub_amount::text, currency, status,
	telegram_charge_id, created_at, paid_at, canceled_at, failed_reason`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p   models.Payment
		rub string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Payload, &p.StarsAmount, &rub, &p.Currency, &p.Status,
		&p.TelegramChargeID, &p.CreatedAt, &p.PaidAt, &p.CanceledAt, &p.FailedReason)
	if err != nil {
		return nil, notFound(err)
	}
	if p.RubAmount, err = decimal.NewFromString(rub); err != nil {
		return nil, fmt.Errorf("payment %s: bad rub_amount %q: %w", p.ID, rub, err)
	}
	return &p, nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *PaymentRepo) GetByPayload(ctx context.Context, payload string) (*models.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payload = $1`, payload))
}

func (r *PaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// ListPaidWithoutTopup returns PAID payments that have no TOPUP ledger entry.
func (r *PaymentRepo) ListPaidWithoutTopup(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id FROM payments p
		WHERE p.status = 'PAID'
		  AND NOT EXISTS (
			SELECT 1 FROM wallet_ledger l WHERE l.payment_id = p.id AND l.entry_type = 'TOPUP'
		  )
		ORDER BY p.paid_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStaleRefunds returns refunds still REQUESTED that were created before
// the cutoff: the process died or the finishing tx failed after the first commit.
func (r *PaymentRepo) ListStaleRefunds(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM refunds
		WHERE status = 'REQUESTED' AND created_at <= $1
		ORDER BY created_at LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type paymentTx struct {
	tx pgx.Tx
}

func (t *paymentTx) LockByPayload(ctx context.Context, payload string) (*models.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payload = $1 FOR UPDATE`, payload))
}

func (t *paymentTx) LockByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
}

func (t *paymentTx) Insert(ctx context.Context, p *models.Payment) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO payments (user_id, payload, stars_amount, rub_amount, currency, status)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id, created_at
	`, p.UserID, p.Payload, p.StarsAmount, p.RubAmount.StringFixed(2), p.Currency, p.Status).Scan(&p.ID, &p.CreatedAt)
}

func (t *paymentTx) UpdateAmounts(ctx context.Context, id uuid.UUID, rub decimal.Decimal, stars int) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE payments SET rub_amount = $2::numeric, stars_amount = $3
		WHERE id = $1 AND status = 'PENDING'
	`, id, rub.StringFixed(2), stars))
}

func (t *paymentTx) MarkPaid(ctx context.Context, id uuid.UUID, chargeID string, paidAt time.Time) error {
	return chargeIDConflict(t.moveStatus(ctx, id, models.PaymentStatusPending, models.PaymentStatusPaid,
		`, telegram_charge_id = $4, paid_at = $5, failed_reason = NULL, canceled_at = NULL`,
		nullIfEmpty(chargeID), paidAt))
}

func (t *paymentTx) MarkFailed(ctx context.Context, id uuid.UUID, chargeID, reason string) error {
	return chargeIDConflict(t.moveStatus(ctx, id, models.PaymentStatusPending, models.PaymentStatusFailed,
		`, telegram_charge_id = $4, failed_reason = $5`,
		nullIfEmpty(chargeID), reason))
}

func (t *paymentTx) MarkRefunded(ctx context.Context, id uuid.UUID) error {
	return t.moveStatus(ctx, id, models.PaymentStatusPaid, models.PaymentStatusRefunded, "")
}

// moveStatus: $1 id, $2 new status, $3 expected status, extra args from $4.
func (t *paymentTx) moveStatus(ctx context.Context, id uuid.UUID, from, to, set string, args ...any) error {
	if !models.IsValidPaymentTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	q := `UPDATE payments SET status = $2` + set + ` WHERE id = $1 AND status = $3`
	return expectOne(t.tx.Exec(ctx, q, append([]any{id, to, from}, args...)...))
}

func (t *paymentTx) TopupExists(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM wallet_ledger WHERE payment_id = $1 AND entry_type = 'TOPUP')
	`, paymentID).Scan(&exists)
	return exists, err
}

func (t *paymentTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	return insertLedgerEntry(ctx, t.tx, e)
}

func (t *paymentTx) OpenRefundExists(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM refunds WHERE payment_id = $1 AND status IN ('REQUESTED', 'OK'))
	`, paymentID).Scan(&exists)
	return exists, err
}

func (t *paymentTx) InsertRefund(ctx context.Context, rf *models.Refund) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO refunds (payment_id, user_id, telegram_charge_id, stars_amount, rub_amount, status)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING id, created_at
	`, rf.PaymentID, rf.UserID, rf.TelegramChargeID, rf.StarsAmount, rf.RubAmount.StringFixed(2), rf.Status).
		Scan(&rf.ID, &rf.CreatedAt)
}

func (t *paymentTx) LockRefund(ctx context.Context, id uuid.UUID) (*models.Refund, error) {
	var (
		rf  models.Refund
		rub string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, payment_id, user_id, telegram_charge_id, stars_amount, rub_amount::text,
		       status, error_message, created_at, processed_at
		FROM refunds WHERE id = $1 FOR UPDATE
	`, id).Scan(&rf.ID, &rf.PaymentID, &rf.UserID, &rf.TelegramChargeID, &rf.StarsAmount, &rub,
		&rf.Status, &rf.ErrorMessage, &rf.CreatedAt, &rf.ProcessedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if rf.RubAmount, err = decimal.NewFromString(rub); err != nil {
		return nil, fmt.Errorf("refund %s: bad rub_amount %q: %w", rf.ID, rub, err)
	}
	return &rf, nil
}

func (t *paymentTx) FinishRefund(ctx context.Context, id uuid.UUID, status string, errMsg *string, at time.Time) error {
	return expectOne(t.tx.Exec(ctx, `
		UPDATE refunds SET status = $2, error_message = $3, processed_at = $4
		WHERE id = $1 AND status = 'REQUESTED'
	`, id, status, errMsg, at))
}

func (t *paymentTx) Audit(ctx context.Context, entry models.AuditLog) error {
	return insertAudit(ctx, t.tx, entry)
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrStaleState
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
