package services

import (
	"context"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/events"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Интерфейсы над репозиториями, чтобы сервисы тестировались без Postgres.

type UserStore interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpsertByTelegramID(ctx context.Context, telegramID int64, username, firstName, lastName *string) (*models.User, error)
	UpdateLastActive(ctx context.Context, id uuid.UUID) error
}

type PaymentStore interface {
	InTx(ctx context.Context, fn func(tx repositories.PaymentTx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByPayload(ctx context.Context, payload string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Payment, error)
	ListPaidWithoutTopup(ctx context.Context, limit int) ([]uuid.UUID, error)
	ListStaleRefunds(ctx context.Context, before time.Time, limit int) ([]uuid.UUID, error)
}

type LedgerStore interface {
	Append(ctx context.Context, e *models.LedgerEntry) error
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

type VpnStore interface {
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]models.VpnConfig, error)
}

// StarsGateway — исходящие вызовы Bot API, связанные с оплатой звёздами.
type StarsGateway interface {
	CreateStarsInvoiceLink(ctx context.Context, title, description, payload, priceLabel string, stars int) (string, error)
	AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error
	RefundStarPayment(ctx context.Context, telegramUserID int64, chargeID string) error
}

// PaymentEventsStream is the redis channel payment notifications go to.
const PaymentEventsStream = "events:payment"

func publishPaymentEvent(ctx context.Context, pub events.Publisher, eventType string, userID uuid.UUID, telegramUserID int64, payload map[string]any) error {
	if pub == nil {
		return nil
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["user_id"] = userID.String()
	payload["telegram_user_id"] = telegramUserID
	return pub.Publish(ctx, PaymentEventsStream, events.Event{Type: eventType, Payload: payload})
}
