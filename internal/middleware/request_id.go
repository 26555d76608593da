package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	CtxRequestID    = "request_id"
	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware принимает X-Request-ID от клиента или генерирует новый.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" || len(reqID) > 64 {
			reqID = uuid.New().String()
		}
		c.Locals(CtxRequestID, reqID)
		c.Set(RequestIDHeader, reqID)
		return c.Next()
	}
}
