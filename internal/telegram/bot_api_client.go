package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// BotAPIClient calls Bot API methods the bot library does not cover yet.
type BotAPIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewBotAPIClient(baseURL, token string, httpClient *http.Client, log *zap.Logger) *BotAPIClient {
	return &BotAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		log:        log,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

// APIError is a non-ok Bot API reply.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// IsChargeAlreadyRefunded: Telegram уже вернул звёзды по этому charge id.
func IsChargeAlreadyRefunded(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "CHARGE_ALREADY_REFUNDED")
}

func (c *BotAPIClient) call(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram api unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var r apiResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return fmt.Errorf("telegram %s returned %d: %s", method, resp.StatusCode, string(raw))
	}
	if !r.OK {
		return &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
	}
	if result != nil {
		return json.Unmarshal(r.Result, result)
	}
	return nil
}

func (c *BotAPIClient) RefundStarPayment(ctx context.Context, telegramUserID int64, chargeID string) error {
	var ok bool
	err := c.call(ctx, "refundStarPayment", map[string]any{
		"user_id":                    telegramUserID,
		"telegram_payment_charge_id": chargeID,
	}, &ok)
	if err != nil {
		return err
	}
	if !ok {
		return &APIError{Method: "refundStarPayment", Description: "result is false"}
	}
	return nil
}
