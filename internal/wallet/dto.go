package wallet

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pocketledger/pocketledger/internal/ledger"
)

type createWalletRequest struct {
	Name    string              `json:"name"`
	Balance decimal.NullDecimal `json:"balance"`
}

type renameWalletRequest struct {
	Name    *string         `json:"name"`
	Balance json.RawMessage `json:"balance"`
}

type walletResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Balance   json.Number `json:"balance"`
	OwnerID   string      `json:"owner_id"`
	CreatedAt time.Time   `json:"created_at"`
}

type createTransactionRequest struct {
	WalletID string              `json:"wallet_id"`
	Value    decimal.NullDecimal `json:"value"`
	Note     string              `json:"note"`
}

type updateTransactionRequest struct {
	Value decimal.NullDecimal `json:"value"`
	Note  *string             `json:"note"`
}

type transactionResponse struct {
	ID        string      `json:"id"`
	Note      string      `json:"note"`
	Value     json.Number `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
	WalletID  string      `json:"wallet_id"`
	OwnerID   string      `json:"owner_id"`
}

func toWalletResponse(w ledger.Wallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		Name:      w.Name,
		Balance:   json.Number(w.Balance.String()),
		OwnerID:   w.OwnerID,
		CreatedAt: w.CreatedAt,
	}
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:        t.ID,
		Note:      t.Note,
		Value:     json.Number(t.Value.String()),
		Timestamp: t.Timestamp,
		WalletID:  t.WalletID,
		OwnerID:   t.OwnerID,
	}
}
