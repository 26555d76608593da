package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleState — строка уже не в том статусе, который ожидал UPDATE.
	ErrStaleState        = errors.New("row is not in expected state")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDuplicateChargeID — charge id от Telegram уже записан на другой платёж.
	ErrDuplicateChargeID = errors.New("telegram charge id already used by another payment")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Unique constraints whose violation means a concurrent insert of the same
// row won: the next attempt sees that row and takes the existing-row branch.
const (
	constraintPaymentPayload = "payments_payload_key"
	constraintTopupPayment   = "ux_wallet_ledger_topup_payment"
	constraintOpenRefund     = "ux_refunds_open_payment"
	constraintChargeID       = "ux_payments_charge_id"
)

// IsRetryable reports serialization failures, deadlocks and insert races on
// the idempotency keys. Other unique violations come from input and fail
// the same way on every attempt.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	case "23505":
		switch pgErr.ConstraintName {
		case constraintPaymentPayload, constraintTopupPayment, constraintOpenRefund:
			return true
		}
	}
	return false
}

// chargeIDConflict maps a violation of ux_payments_charge_id to ErrDuplicateChargeID.
func chargeIDConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraintChargeID {
		return fmt.Errorf("%w: %s", ErrDuplicateChargeID, pgErr.Detail)
	}
	return err
}
