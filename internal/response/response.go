package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/ledger"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Body   any    `json:"body,omitempty"`
}

// Generate builds an envelope.
func Generate(status int, errMsg string, body any) Envelope {
	return Envelope{Status: status, Error: errMsg, Body: body}
}

// JSON writes body inside a success envelope.
func JSON(c *fiber.Ctx, status int, body any) error {
	return c.Status(status).JSON(Generate(status, "", body))
}

// Status maps an error onto an HTTP status and a client-safe message.
// Ownership failures never reveal whether the record exists.
func Status(err error) (int, string) {
	var (
		fe  *fiber.Error
		ve  *ledger.ValidationError
		pfe *ledger.PartialFailureError
	)
	switch {
	case errors.As(err, &fe):
		return fe.Code, fe.Message
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Error()
	case errors.As(err, &pfe):
		return http.StatusInternalServerError, "partial_failure"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, ledger.ErrInvalidWallet):
		return http.StatusBadRequest, "invalid wallet"
	case errors.Is(err, ledger.ErrTransient):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// ErrorHandler renders handler errors as envelopes. Server-side failures are
// logged with the request id.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, msg := Status(err)
		if status >= http.StatusInternalServerError && logger != nil {
			requestID, _ := c.Locals("X-Request-ID").(string)
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.Int("status", status),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
		}
		if status == http.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(status).JSON(Generate(status, msg, nil))
	}
}
