package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger entry types
const (
	LedgerTypeTopup      = "TOPUP"
	LedgerTypeDebit      = "DEBIT"
	LedgerTypeRefund     = "REFUND"
	LedgerTypeAdjustment = "ADJUSTMENT"
	LedgerTypeBonus      = "BONUS"
)

// LedgerEntry — строка wallet_ledger. Записи не изменяются и не удаляются,
// баланс пользователя = сумма amount_rub.
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	PaymentID *uuid.UUID      `json:"payment_id,omitempty"`
	EntryType string          `json:"entry_type"`
	AmountRub decimal.Decimal `json:"amount_rub"`
	Comment   *string         `json:"comment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
