package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/middleware"
	"github.com/pocketledger/pocketledger/internal/wallet"
)

// RegisterWalletRoutes wires wallet endpoints under /wallets.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	byID := middleware.ValidateID("id")
	r.Post("/", h.CreateWallet)
	r.Get("/", h.ListWallets)
	r.Get("/:id", byID, h.GetWallet)
	r.Patch("/:id", byID, h.RenameWallet)
	r.Delete("/:id", byID, h.DeleteWallet)
	r.Get("/:id/transactions", byID, h.ListWalletTransactions)
}

// RegisterTransactionRoutes wires transaction endpoints under /transactions.
func RegisterTransactionRoutes(r fiber.Router, h *wallet.Handler) {
	byID := middleware.ValidateID("id")
	r.Post("/", h.CreateTransaction)
	r.Get("/", h.ListTransactions)
	r.Get("/:id", byID, h.GetTransaction)
	r.Patch("/:id", byID, h.UpdateTransaction)
	r.Delete("/:id", byID, h.DeleteTransaction)
}
