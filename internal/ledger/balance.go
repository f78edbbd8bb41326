package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// applyDelta is the balance accessor: the only path through which an existing
// wallet's balance changes. It relies on the store's atomic increment, so
// concurrent deltas against one wallet never overwrite each other.
func applyDelta(ctx context.Context, st Store, walletID string, delta decimal.Decimal) (Wallet, error) {
	w, err := st.IncrementBalance(ctx, walletID, delta)
	if err != nil {
		return Wallet{}, fmt.Errorf("apply delta %s to wallet %s: %w", delta, walletID, err)
	}
	return w, nil
}
