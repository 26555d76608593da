package events

import (
	"encoding/json"
	"testing"
)

func TestEventAccessorsAfterJSON(t *testing.T) {
	data, _ := json.Marshal(Event{
		Type: EventPaymentSettled,
		Payload: map[string]any{
			"user_id":          "0b6f3c1e-0000-4000-8000-000000000001",
			"telegram_user_id": int64(7342037123),
		},
	})

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		t.Fatal(err)
	}
	if e.UserID() != "0b6f3c1e-0000-4000-8000-000000000001" {
		t.Errorf("unexpected user id %q", e.UserID())
	}
	if e.TelegramUserID() != 7342037123 {
		t.Errorf("unexpected telegram user id %d", e.TelegramUserID())
	}
}

func TestEventAccessorsMissing(t *testing.T) {
	e := Event{Type: EventPaymentFailed}
	if e.UserID() != "" || e.TelegramUserID() != 0 {
		t.Error("expected zero values for empty payload")
	}
}
