package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/auth"
)

// RegisterAuthRoutes wires the public registration and token endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	r.Post("/users", h.Register)
	if rateLimiter != nil {
		r.Post("/users/login", rateLimiter, h.Login)
	} else {
		r.Post("/users/login", h.Login)
	}
	r.Post("/auth/refresh", h.Refresh)
}

// RegisterSessionRoutes wires endpoints of the signed-in user.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler) {
	r.Get("/", h.Me)
	r.Delete("/token", h.Logout)
}
