package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// Gateway wraps one long-lived Bot API client. All calls are bounded by
// the timeout it was built with.
type Gateway struct {
	bot     *bot.Bot
	api     *BotAPIClient
	timeout time.Duration
	log     *zap.Logger
}

func NewGateway(token, apiURL string, timeout time.Duration, log *zap.Logger) (*Gateway, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	b, err := bot.New(token,
		bot.WithHTTPClient(timeout, httpClient),
		bot.WithServerURL(apiURL),
	)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	return &Gateway{
		bot:     b,
		api:     NewBotAPIClient(apiURL, token, httpClient, log),
		timeout: timeout,
		log:     log,
	}, nil
}

func (g *Gateway) CreateStarsInvoiceLink(ctx context.Context, title, description, payload, priceLabel string, stars int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	link, err := g.bot.CreateInvoiceLink(ctx, &bot.CreateInvoiceLinkParams{
		Title:       title,
		Description: description,
		Payload:     payload,
		Currency:    "XTR",
		Prices: []models.LabeledPrice{
			{Label: priceLabel, Amount: stars},
		},
	})
	if err != nil {
		return "", fmt.Errorf("createInvoiceLink: %w", err)
	}
	return link, nil
}

func (g *Gateway) AnswerPreCheckout(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: queryID,
		OK:                 ok,
	}
	if !ok {
		params.ErrorMessage = errorMessage
	}
	if _, err := g.bot.AnswerPreCheckoutQuery(ctx, params); err != nil {
		return fmt.Errorf("answerPreCheckoutQuery: %w", err)
	}
	return nil
}

func (g *Gateway) RefundStarPayment(ctx context.Context, telegramUserID int64, chargeID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	err := g.api.RefundStarPayment(ctx, telegramUserID, chargeID)
	if IsChargeAlreadyRefunded(err) {
		// повторный вызов после сбоя: звёзды уже у пользователя
		g.log.Warn("charge already refunded", zap.String("charge_id", chargeID))
		return nil
	}
	return err
}

// SendText отправляет пользователю простое HTML-сообщение.
func (g *Gateway) SendText(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	_, err := g.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	return err
}
