package events

import "context"

// Event types
const (
	EventPaymentSettled  = "payment_settled"
	EventPaymentFailed   = "payment_failed"
	EventPaymentRefunded = "payment_refunded"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// UserID returns payload["user_id"], which every payment event carries.
func (e Event) UserID() string {
	s, _ := e.Payload["user_id"].(string)
	return s
}

// TelegramUserID survives a JSON round trip as float64.
func (e Event) TelegramUserID() int64 {
	switch v := e.Payload["telegram_user_id"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
