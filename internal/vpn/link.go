package vpn

import (
	"fmt"

	"github.com/fast-rabbit/vpn-backend/internal/models"
)

const (
	DefaultFlow = "xtls-rprx-vision"
	defaultTag  = "vpn-user"
	realityPort = 443
)

// Reality — общие для всех серверов параметры VLESS Reality.
type Reality struct {
	PublicKey string
	ShortID   string
	SNI       string
	Flow      string
}

// Link собирает vless:// ссылку, которую клиент импортирует как есть.
// Параметры не экранируются: uuid, домен и ключи состоят из безопасных символов.
func (r Reality) Link(cfg models.VpnConfig) string {
	flow := r.Flow
	if cfg.Flow != nil && *cfg.Flow != "" {
		flow = *cfg.Flow
	}
	if flow == "" {
		flow = DefaultFlow
	}
	tag := defaultTag
	if cfg.Email != nil && *cfg.Email != "" {
		tag = *cfg.Email
	}
	return fmt.Sprintf(
		"vless://%s@%s:%d?flow=%s&type=tcp&security=reality&fp=random&sni=%s&pbk=%s&sid=%s&spx=/#%s",
		cfg.UUID, cfg.VpnDomain, realityPort, flow, r.SNI, r.PublicKey, r.ShortID, tag,
	)
}

// Keys converts active configs into the keys list of a profile.
func (r Reality) Keys(configs []models.VpnConfig) []models.UserKey {
	keys := make([]models.UserKey, 0, len(configs))
	for _, c := range configs {
		keys = append(keys, models.UserKey{
			ID:        c.ID,
			Key:       r.Link(c),
			Country:   c.Country,
			CreatedAt: c.CreatedAt,
		})
	}
	return keys
}
