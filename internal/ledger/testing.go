package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// SeedDrift moves a wallet balance without a matching transaction. It is a
// test helper for exercising the auditor; production code must go through
// Service.
func SeedDrift(ctx context.Context, st Store, walletID string, delta decimal.Decimal) error {
	_, err := st.IncrementBalance(ctx, walletID, delta)
	return err
}

// SeedOrphan stores a transaction pointing at a wallet that does not exist,
// as left behind by an interrupted cascade delete.
func SeedOrphan(ctx context.Context, st Store, tx Transaction) error {
	return st.InsertTransaction(ctx, tx)
}
