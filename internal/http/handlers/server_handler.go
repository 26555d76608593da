package handlers

import (
	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

// ServerHandler отдаёт список локаций из конфига.
type ServerHandler struct {
	servers []models.VpnServer
}

func NewServerHandler(servers []models.VpnServer) *ServerHandler {
	if servers == nil {
		servers = []models.VpnServer{}
	}
	return &ServerHandler{servers: servers}
}

func (h *ServerHandler) ListServers(c *fiber.Ctx) error {
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.servers})
}
