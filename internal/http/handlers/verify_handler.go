package handlers

import (
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/auth"
	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const InitDataHeader = "X-Telegram-WebApp-InitData"

// VerifyHandler — stateless проверка initData, без БД.
type VerifyHandler struct {
	cfg *config.Config
	log *zap.Logger
	now func() time.Time
}

func NewVerifyHandler(cfg *config.Config, log *zap.Logger) *VerifyHandler {
	return &VerifyHandler{cfg: cfg, log: log, now: time.Now}
}

func (h *VerifyHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	// заголовок приоритетнее тела
	if v := c.Get(InitDataHeader); v != "" {
		req.InitData = v
	}
	if req.InitData == "" {
		return badRequest(c, "init_data is required")
	}

	mode := auth.Mode(req.Mode)
	if mode == "" {
		mode = auth.ModeHMAC
	}
	env := auth.EnvProd
	if req.Env != "" {
		env = auth.ParseEnv(req.Env)
	}
	maxAge := h.cfg.InitDataMaxAge
	if req.MaxAgeSec > 0 {
		maxAge = time.Duration(req.MaxAgeSec) * time.Second
	}

	identity, err := auth.Verify(mode, req.InitData, auth.Options{
		BotToken: h.cfg.BotToken,
		BotID:    h.cfg.BotID,
		Env:      env,
		MaxAge:   maxAge,
		Now:      h.now(),
	})
	if err != nil {
		h.log.Debug("initData verification failed", zap.String("mode", string(mode)), zap.Error(err))
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.VerifyResponse{OK: true, Fields: identity.Fields})
}
