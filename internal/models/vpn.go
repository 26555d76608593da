package models

import (
	"time"

	"github.com/google/uuid"
)

type VpnConfig struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	UUID      string     `json:"uuid"`
	VpnDomain string     `json:"vpn_domain"`
	Flow      *string    `json:"flow,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Country   *string    `json:"country,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// VpnServer — локация из конфига, отдаётся в /servers.
type VpnServer struct {
	Country string `json:"country"`
	Domain  string `json:"domain"`
}
