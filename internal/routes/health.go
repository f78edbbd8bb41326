package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterHealthRoutes adds a readiness endpoint covering every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"
		natsStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB == nil {
			dbStatus = "disabled"
		} else if err := d.DB.Ping(ctx); err != nil {
			dbStatus = err.Error()
		}
		if d.Cache == nil {
			redisStatus = "disabled"
		} else if err := d.Cache.Ping(ctx).Err(); err != nil {
			redisStatus = err.Error()
		}
		if d.NATS == nil {
			natsStatus = "disabled"
		} else if !d.NATS.IsConnected() {
			natsStatus = d.NATS.Status().String()
		}

		status := http.StatusOK
		for _, s := range []string{dbStatus, redisStatus, natsStatus} {
			if s != "ok" && s != "disabled" {
				status = http.StatusServiceUnavailable
			}
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus, "nats": natsStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
