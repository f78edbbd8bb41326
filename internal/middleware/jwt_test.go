package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/config"
	"github.com/pocketledger/pocketledger/internal/identity"
)

func setupAuthApp(t *testing.T) (*fiber.App, *auth.Service, identity.User) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	user, err := identity.NewService(repo).Register(context.Background(), identity.Credentials{Email: "daniel@example.com", Password: "userOnePass"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	svc := auth.NewService(config.Config{
		JWTSecret:       "access",
		RefreshSecret:   "refresh",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}, repo)

	app := fiber.New()
	app.Get("/users/me", JWTAuth(svc), func(c *fiber.Ctx) error {
		uid, _ := c.Locals(userIDLocal).(string)
		return c.SendString(uid)
	})
	return app, svc, user
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	app, _, _ := setupAuthApp(t)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/me", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.StatusCode)
	}
}

func TestJWTAuthAcceptsValidTokenUntilLogout(t *testing.T) {
	app, svc, user := setupAuthApp(t)
	pair, err := svc.Login(user)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/users/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	req = httptest.NewRequest(fiber.MethodGet, "/users/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+pair.AccessToken)
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected revoked token to get 401, got %d", resp.StatusCode)
	}
}
