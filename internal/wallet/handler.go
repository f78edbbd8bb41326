package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/ledger"
	"github.com/pocketledger/pocketledger/internal/response"
)

// Handler exposes wallet and transaction endpoints over the ledger service.
// Routes must sit behind JWT auth; the caller's id is the owner for every call.
type Handler struct {
	ledger *ledger.Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(svc *ledger.Service) *Handler {
	return &Handler{ledger: svc}
}

func owner(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func badBody(err error) error {
	return fiber.NewError(http.StatusBadRequest, "invalid request body: "+err.Error())
}

// CreateWallet stores a wallet for the caller, with an optional opening balance.
func (h *Handler) CreateWallet(c *fiber.Ctx) error {
	var req createWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	w, err := h.ledger.CreateWallet(c.UserContext(), ledger.CreateWalletInput{
		OwnerID:        owner(c),
		Name:           req.Name,
		OpeningBalance: req.Balance.Decimal,
	})
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusCreated, toWalletResponse(w))
}

// ListWallets returns the caller's wallets.
func (h *Handler) ListWallets(c *fiber.Ctx) error {
	wallets, err := h.ledger.ListWallets(c.UserContext(), owner(c))
	if err != nil {
		return err
	}
	out := make([]walletResponse, 0, len(wallets))
	for _, w := range wallets {
		out = append(out, toWalletResponse(w))
	}
	return response.JSON(c, http.StatusOK, out)
}

// GetWallet returns one of the caller's wallets.
func (h *Handler) GetWallet(c *fiber.Ctx) error {
	w, err := h.ledger.GetWallet(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toWalletResponse(w))
}

// RenameWallet changes the wallet name. The balance cannot be patched.
func (h *Handler) RenameWallet(c *fiber.Ctx) error {
	var req renameWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	if len(req.Balance) > 0 {
		return &ledger.ValidationError{Field: "balance", Reason: "is read-only"}
	}
	if req.Name == nil {
		return &ledger.ValidationError{Field: "name", Reason: "is required"}
	}
	w, err := h.ledger.RenameWallet(c.UserContext(), c.Params("id"), owner(c), *req.Name)
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toWalletResponse(w))
}

// DeleteWallet removes the wallet and all of its transactions.
func (h *Handler) DeleteWallet(c *fiber.Ctx) error {
	w, err := h.ledger.DeleteWallet(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toWalletResponse(w))
}
