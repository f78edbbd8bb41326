package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a named balance owned by a single user. Balance always equals the
// sum of the values of the wallet's live transactions.
type Wallet struct {
	ID        string
	Name      string
	Balance   decimal.Decimal
	OwnerID   string
	CreatedAt time.Time
}

// Transaction is a signed entry against exactly one wallet. WalletID, OwnerID
// and Timestamp never change after creation.
type Transaction struct {
	ID        string
	Note      string
	Value     decimal.Decimal
	Timestamp time.Time
	WalletID  string
	OwnerID   string
}

// WalletFilter selects wallets. Empty fields match anything; a filter
// without OwnerID is reserved for operator tooling.
type WalletFilter struct {
	ID      string
	OwnerID string
}

// TransactionFilter selects transactions. Empty fields match anything.
type TransactionFilter struct {
	OwnerID  string
	WalletID string
}

func (f TransactionFilter) empty() bool {
	return f.OwnerID == "" && f.WalletID == ""
}

// TransactionPatch describes a partial transaction update. When ExpectValue
// is set the update only applies if the stored value still equals it,
// otherwise the store returns ErrConflict.
type TransactionPatch struct {
	Note        *string
	Value       *decimal.Decimal
	ExpectValue *decimal.Decimal
}

// Store is the ledger's document store. Every method is individually atomic
// and owner-scoped lookups report foreign records as ErrNotFound.
type Store interface {
	InsertWallet(ctx context.Context, wallet Wallet) error
	FindWallet(ctx context.Context, id, ownerID string) (Wallet, error)
	FindWallets(ctx context.Context, filter WalletFilter) ([]Wallet, error)
	WalletExists(ctx context.Context, id, ownerID string) (bool, error)
	RenameWallet(ctx context.Context, id, ownerID, name string) (Wallet, error)
	// IncrementBalance adds delta to the wallet balance in one atomic write.
	IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (Wallet, error)
	DeleteWallet(ctx context.Context, id, ownerID string) (Wallet, error)

	InsertTransaction(ctx context.Context, tx Transaction) error
	FindTransaction(ctx context.Context, id, ownerID string) (Transaction, error)
	FindTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	UpdateTransaction(ctx context.Context, id, ownerID string, patch TransactionPatch) (Transaction, error)
	// DeleteTransaction removes one transaction. A non-nil expectValue turns it
	// into a compare-and-delete that fails with ErrConflict on mismatch.
	DeleteTransaction(ctx context.Context, id, ownerID string, expectValue *decimal.Decimal) (Transaction, error)
	// DeleteTransactions removes every match; an empty filter is rejected.
	DeleteTransactions(ctx context.Context, filter TransactionFilter) (int64, error)
	SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, int64, error)
	// PurgeOrphans removes transactions whose wallet no longer exists.
	PurgeOrphans(ctx context.Context) (int64, error)
}

// TxStore is a Store able to run several operations as one atomic unit.
// Inside fn, only the provided Store and context may be used. The context
// carries the store's deadline for the whole unit of work.
type TxStore interface {
	Store
	WithinTx(ctx context.Context, fn func(context.Context, Store) error) error
}
