package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/response"
)

// Handler exposes user registration and session endpoints.
type Handler struct {
	ids    *identity.Service
	svc    *Service
	logger *slog.Logger
}

// NewHandler builds the registration and session handler.
func NewHandler(ids *identity.Service, svc *Service, logger *slog.Logger) *Handler {
	return &Handler{ids: ids, svc: svc, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	User userResponse `json:"user"`
	TokenPair
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Register creates a user and signs them in.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Register(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	if h.logger != nil {
		h.logger.Info("user registered", slog.String("user_id", user.ID))
	}
	return response.JSON(c, http.StatusCreated, sessionResponse{User: toUserResponse(user), TokenPair: pair})
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req credentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.ids.Authenticate(c.UserContext(), identity.Credentials{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return err
	}
	pair, err := h.svc.Login(user)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, sessionResponse{User: toUserResponse(user), TokenPair: pair})
}

// Me returns the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	user, err := h.ids.Get(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, "user not found")
	}
	return response.JSON(c, http.StatusOK, toUserResponse(user))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return fiber.NewError(http.StatusUnauthorized, "invalid refresh token")
		}
		return err
	}
	return response.JSON(c, http.StatusOK, fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout revokes every token of the authenticated user.
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if err := h.svc.Logout(c.UserContext(), uid); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return fiber.NewError(http.StatusUnauthorized, "user not found")
		}
		return err
	}
	return response.JSON(c, http.StatusOK, fiber.Map{"logged_out": true})
}
