package dto

import "github.com/fast-rabbit/vpn-backend/internal/models"

type VerifyResponse struct {
	OK     bool              `json:"ok"`
	Fields map[string]string `json:"fields"`
}

// AuthResponse — токен и профиль в одном ответе, Mini-App сразу рисует экран.
type AuthResponse struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresIn   int             `json:"expires_in"`
	User        *models.Profile `json:"user"`
}

type InvoiceResponse struct {
	InvoiceLink string `json:"invoice_link"`
	Stars       int    `json:"stars"`
	Payload     string `json:"payload"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}
