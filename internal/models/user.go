package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	TelegramUserID int64     `json:"telegram_id"`
	Username       *string   `json:"username,omitempty"`
	FirstName      *string   `json:"first_name,omitempty"`
	LastName       *string   `json:"last_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActiveAt   time.Time `json:"last_active_at"`
}

// UserKey — VPN-ключ в виде готовой vless-ссылки.
type UserKey struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Country   *string   `json:"country,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Balance struct {
	Balance decimal.Decimal `json:"balance"`
}

// Profile is what the Mini-App renders after login.
type Profile struct {
	User
	Balance Balance   `json:"balance"`
	Keys    []UserKey `json:"keys"`
}
