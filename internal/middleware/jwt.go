package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/auth"
)

const userIDLocal = "user_id"

// JWTAuth validates bearer access tokens and stores the caller in Locals
// under "user_id". Everything downstream trusts that value as the owner id.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := svc.Verify(c.UserContext(), tokenStr)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			}
			return err
		}

		c.Locals(userIDLocal, claims.UserID)
		c.Locals("token_version", claims.TokenVersion)
		return c.Next()
	}
}
