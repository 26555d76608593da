package handlers

import (
	"errors"
	"strconv"

	"github.com/fast-rabbit/vpn-backend/internal/auth"
	"github.com/fast-rabbit/vpn-backend/internal/http/dto"
	"github.com/fast-rabbit/vpn-backend/internal/middleware"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// respondError переводит доменную ошибку в HTTP статус. Всё, что не
// services.Error, считается внутренней ошибкой и наружу не раскрывается.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)

	var verr *auth.VerifyError
	if errors.As(err, &verr) {
		return c.Status(verifyStatus(verr.Kind)).JSON(dto.ErrorResponse{Error: verr.Msg, RequestID: reqID})
	}

	var serr *services.Error
	if !errors.As(err, &serr) {
		log.Error("internal error",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: reqID})
	}

	status := fiber.StatusInternalServerError
	switch serr.Kind {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindAuth:
		status = fiber.StatusUnauthorized
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindConflict:
		status = fiber.StatusConflict
	case services.KindUpstream:
		status = fiber.StatusBadGateway
		log.Warn("upstream error", zap.String("request_id", reqID), zap.Error(serr))
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: serr.Message, RequestID: reqID})
}

func verifyStatus(kind auth.ErrorKind) int {
	switch kind {
	case auth.KindInvalidSignature, auth.KindStale:
		return fiber.StatusUnauthorized
	default:
		return fiber.StatusBadRequest
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit, offset = 20, 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
