package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pocketledger/pocketledger/internal/ledger"
	"github.com/pocketledger/pocketledger/internal/response"
)

// CreateTransaction posts a transaction against one of the caller's wallets.
func (h *Handler) CreateTransaction(c *fiber.Ctx) error {
	var req createTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	tx, err := h.ledger.CreateTransaction(c.UserContext(), ledger.CreateTransactionInput{
		WalletID: req.WalletID,
		OwnerID:  owner(c),
		Value:    req.Value,
		Note:     req.Note,
	})
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusCreated, toTransactionResponse(tx))
}

// ListTransactions returns every transaction of the caller.
func (h *Handler) ListTransactions(c *fiber.Ctx) error {
	txs, err := h.ledger.ListTransactions(c.UserContext(), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toTransactionList(txs))
}

// ListWalletTransactions returns the transactions of one of the caller's wallets.
func (h *Handler) ListWalletTransactions(c *fiber.Ctx) error {
	txs, err := h.ledger.ListWalletTransactions(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toTransactionList(txs))
}

// GetTransaction returns one of the caller's transactions.
func (h *Handler) GetTransaction(c *fiber.Ctx) error {
	tx, err := h.ledger.GetTransaction(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toTransactionResponse(tx))
}

// UpdateTransaction changes the value and/or note of a transaction.
func (h *Handler) UpdateTransaction(c *fiber.Ctx) error {
	var req updateTransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	tx, err := h.ledger.UpdateTransaction(c.UserContext(), ledger.UpdateTransactionInput{
		ID:      c.Params("id"),
		OwnerID: owner(c),
		Value:   req.Value,
		Note:    req.Note,
	})
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toTransactionResponse(tx))
}

// DeleteTransaction removes a transaction and reverses its balance effect.
func (h *Handler) DeleteTransaction(c *fiber.Ctx) error {
	tx, err := h.ledger.DeleteTransaction(c.UserContext(), c.Params("id"), owner(c))
	if err != nil {
		return err
	}
	return response.JSON(c, http.StatusOK, toTransactionResponse(tx))
}

func toTransactionList(txs []ledger.Transaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}
