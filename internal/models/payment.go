package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses
const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusPaid     = "PAID"
	PaymentStatusCanceled = "CANCELED"
	PaymentStatusExpired  = "EXPIRED"
	PaymentStatusRefunded = "REFUNDED"
	PaymentStatusFailed   = "FAILED"
)

const CurrencyXTR = "XTR"

// Valid state transitions: from -> []to
var ValidPaymentTransitions = map[string][]string{
	PaymentStatusPending:  {PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled, PaymentStatusExpired},
	PaymentStatusPaid:     {PaymentStatusRefunded},
	PaymentStatusCanceled: {},
	PaymentStatusExpired:  {},
	PaymentStatusRefunded: {},
	PaymentStatusFailed:   {},
}

func IsValidPaymentTransition(from, to string) bool {
	allowed, ok := ValidPaymentTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

type Payment struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	Payload          string          `json:"payload"`
	StarsAmount      int             `json:"stars_amount"`
	RubAmount        decimal.Decimal `json:"rub_amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	TelegramChargeID *string         `json:"telegram_charge_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CanceledAt       *time.Time      `json:"canceled_at,omitempty"`
	FailedReason     *string         `json:"failed_reason,omitempty"`
}
