package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/fast-rabbit/vpn-backend/internal/auth"
	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/rbac"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CtxUserID         = "user_id"
	CtxTelegramUserID = "telegram_user_id"
	CtxRole           = "role"

	WebhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader || tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				log.Debug("jwt expired", zap.String("path", c.Path()))
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "token expired"})
			}
			// подпись не сошлась или мусор вместо токена
			log.Warn("jwt rejected", zap.String("path", c.Path()), zap.String("ip", c.IP()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(CtxUserID, claims.UserID)
		c.Locals(CtxTelegramUserID, claims.TelegramUserID)
		c.Locals(CtxRole, rbac.Resolve(cfg.IsAdmin(claims.TelegramUserID), cfg.IsSupport(claims.TelegramUserID)))

		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(CtxUserID).(uuid.UUID)
	return id
}

func GetTelegramUserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals(CtxTelegramUserID).(int64)
	return id
}

func GetRole(c *fiber.Ctx) string {
	role, _ := c.Locals(CtxRole).(string)
	if role == "" {
		return rbac.RoleUser
	}
	return role
}

// RequirePermission пропускает только роли с нужным правом. Ставится после AuthMiddleware.
func RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rbac.HasPermission(GetRole(c), permission) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "insufficient permissions"})
		}
		return c.Next()
	}
}

// WebhookSecretMiddleware проверяет секрет, который Telegram шлёт с каждым апдейтом.
// Пустой секрет в конфиге отклоняет все запросы.
func WebhookSecretMiddleware(secret string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn("webhook rejected: bad secret", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
		}
		return c.Next()
	}
}
