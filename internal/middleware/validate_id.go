package middleware

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ValidateID rejects requests whose path parameter is not a UUID before any
// lookup happens. A malformed id is reported like a missing record.
func ValidateID(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := uuid.Parse(c.Params(param)); err != nil {
			return fiber.NewError(http.StatusNotFound, "Invalid ID.")
		}
		return c.Next()
	}
}
