package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Refund statuses
const (
	RefundStatusRequested = "REQUESTED"
	RefundStatusOK        = "OK"
	RefundStatusFailed    = "FAILED"
)

type Refund struct {
	ID               uuid.UUID       `json:"id"`
	PaymentID        uuid.UUID       `json:"payment_id"`
	UserID           uuid.UUID       `json:"user_id"`
	TelegramChargeID string          `json:"telegram_charge_id"`
	StarsAmount      int             `json:"stars_amount"`
	RubAmount        decimal.Decimal `json:"rub_amount"`
	Status           string          `json:"status"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
}
