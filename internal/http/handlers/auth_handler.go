package handlers

import (
	"context"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/auth"
	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ProfileProvider interface {
	Login(ctx context.Context, tgUser *auth.TelegramUser) (*models.Profile, error)
	Profile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Ledger(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
}

type AuthHandler struct {
	profiles ProfileProvider
	cfg      *config.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewAuthHandler(profiles ProfileProvider, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{profiles: profiles, cfg: cfg, log: log, now: time.Now}
}

// TelegramAuth обменивает initData из заголовка на access token и профиль.
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	initData := c.Get(InitDataHeader)
	if initData == "" {
		var req struct {
			InitData string `json:"init_data"`
		}
		if len(c.Body()) > 0 {
			_ = c.BodyParser(&req)
		}
		initData = req.InitData
	}
	if initData == "" {
		return badRequest(c, "init_data is required")
	}

	identity, err := auth.Verify(auth.ModeHMAC, initData, auth.Options{
		BotToken: h.cfg.BotToken,
		MaxAge:   h.cfg.InitDataMaxAge,
		Now:      h.now(),
	})
	if err != nil {
		h.log.Debug("telegram auth validation failed", zap.Error(err))
		return respondError(c, h.log, err)
	}

	tgUser, err := auth.ExtractUser(identity.Fields)
	if err != nil {
		return respondError(c, h.log, err)
	}

	profile, err := h.profiles.Login(c.UserContext(), tgUser)
	if err != nil {
		return respondError(c, h.log, err)
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, profile.ID, profile.TelegramUserID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return respondError(c, h.log, err)
	}

	ttl := h.cfg.JWTExpiration
	if ttl <= 0 {
		ttl = auth.DefaultTokenTTL
	}
	return c.JSON(dto.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(ttl.Seconds()),
		User:        profile,
	})
}
