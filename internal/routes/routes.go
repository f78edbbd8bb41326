package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/pocketledger/pocketledger/internal/auth"
	"github.com/pocketledger/pocketledger/internal/config"
	"github.com/pocketledger/pocketledger/internal/identity"
	"github.com/pocketledger/pocketledger/internal/ledger"
	"github.com/pocketledger/pocketledger/internal/middleware"
	"github.com/pocketledger/pocketledger/internal/notification"
	"github.com/pocketledger/pocketledger/internal/wallet"
)

// eventSubjectPrefix namespaces ledger events on NATS, e.g. "pocketledger.transaction.created".
const eventSubjectPrefix = "pocketledger"

// Deps aggregates shared dependencies required to wire routes.
// DB, Cache and NATS are optional in development.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	NATS   *nats.Conn
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB, d.Cfg.StoreTimeout)
	} else {
		store = ledger.NewInMemory()
	}
	var notifier notification.Notifier = notification.NewLoggerNotifier(d.Logger)
	if d.NATS != nil {
		notifier = notification.NewNATSNotifier(d.NATS, eventSubjectPrefix)
	}
	ledgerSvc := ledger.NewService(store, notifier, d.Logger)
	ledgerSvc.SetUpdateRetries(d.Cfg.UpdateRetries)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo)
	authSvc := auth.NewService(d.Cfg, identityRepo)

	authHandler := auth.NewHandler(identitySvc, authSvc, d.Logger)
	walletHandler := wallet.NewHandler(ledgerSvc)

	app.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit)
	RegisterAuthRoutes(app, authHandler, rateLimiter)

	// Protected routes
	jwtmw := middleware.JWTAuth(authSvc)
	idem := middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Cfg.IdempotencyRequired, d.Logger)
	RegisterSessionRoutes(app.Group("/users/me", jwtmw), authHandler)
	RegisterWalletRoutes(app.Group("/wallets", jwtmw, idem), walletHandler)
	RegisterTransactionRoutes(app.Group("/transactions", jwtmw, idem), walletHandler)

	return nil
}
