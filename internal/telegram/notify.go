package telegram

import (
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/events"
)

// NotificationText renders a payment event for the user chat.
// Empty string means the event is not user-facing.
func NotificationText(event events.Event) string {
	rub, _ := event.Payload["rub_amount"].(string)
	switch event.Type {
	case events.EventPaymentSettled:
		return fmt.Sprintf("✅ Баланс пополнен на %s ₽", rub)
	case events.EventPaymentFailed:
		return "⚠️ Оплата не прошла: получено меньше звёзд, чем в счёте. Напишите в поддержку."
	case events.EventPaymentRefunded:
		return fmt.Sprintf("↩️ Возврат оформлен, с баланса списано %s ₽", rub)
	}
	return ""
}
