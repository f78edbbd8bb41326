package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pocketledger/pocketledger/internal/logging"
)

// Drift compares a wallet's stored balance with the sum of its transactions.
type Drift struct {
	WalletID     string
	OwnerID      string
	Balance      decimal.Decimal
	Sum          decimal.Decimal
	Transactions int64
}

// Amount is balance - sum; zero for a consistent wallet.
func (d Drift) Amount() decimal.Decimal {
	return d.Balance.Sub(d.Sum)
}

// Consistent reports whether the wallet satisfies the balance invariant.
func (d Drift) Consistent() bool {
	return d.Amount().IsZero()
}

// Auditor recomputes the balance invariant and repairs what partial
// failures left behind.
type Auditor struct {
	store  Store
	logger *slog.Logger
}

// NewAuditor builds an auditor over the given store.
func NewAuditor(store Store, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Auditor{store: store, logger: logger}
}

// Check audits a single wallet.
func (a *Auditor) Check(ctx context.Context, walletID string) (Drift, error) {
	wallets, err := a.store.FindWallets(ctx, WalletFilter{ID: walletID})
	if err != nil {
		return Drift{}, err
	}
	if len(wallets) == 0 {
		return Drift{}, ErrNotFound
	}
	return measure(ctx, a.store, wallets[0])
}

// CheckAll audits every wallet in the store.
func (a *Auditor) CheckAll(ctx context.Context) ([]Drift, error) {
	wallets, err := a.store.FindWallets(ctx, WalletFilter{})
	if err != nil {
		return nil, err
	}
	drifts := make([]Drift, 0, len(wallets))
	for _, w := range wallets {
		d, err := measure(ctx, a.store, w)
		if err != nil {
			return nil, fmt.Errorf("audit wallet %s: %w", w.ID, err)
		}
		if !d.Consistent() {
			a.logger.Warn("wallet balance drift", "wallet_id", d.WalletID, "balance", d.Balance.String(), "sum", d.Sum.String())
		}
		drifts = append(drifts, d)
	}
	return drifts, nil
}

func measure(ctx context.Context, st Store, w Wallet) (Drift, error) {
	sum, count, err := st.SumTransactions(ctx, w.ID)
	if err != nil {
		return Drift{}, err
	}
	return Drift{WalletID: w.ID, OwnerID: w.OwnerID, Balance: w.Balance, Sum: sum, Transactions: count}, nil
}

// Repair corrects a drifting wallet through the balance accessor. With a
// transactional store the wallet row is locked by a zero increment before
// summing, so concurrent postings cannot slip between read and fix.
func (a *Auditor) Repair(ctx context.Context, walletID string) (Drift, error) {
	var before Drift
	fix := func(ctx context.Context, st Store) error {
		w, err := st.IncrementBalance(ctx, walletID, decimal.Zero)
		if err != nil {
			return err
		}
		before, err = measure(ctx, st, w)
		if err != nil {
			return err
		}
		if before.Consistent() {
			return nil
		}
		_, err = applyDelta(ctx, st, walletID, before.Amount().Neg())
		return err
	}

	var err error
	if txs, ok := a.store.(TxStore); ok {
		err = txs.WithinTx(ctx, fix)
	} else {
		err = fix(ctx, a.store)
	}
	if err != nil {
		return Drift{}, err
	}
	if !before.Consistent() {
		a.logger.Info("wallet balance repaired", "wallet_id", walletID, "correction", before.Amount().Neg().String())
	}
	return before, nil
}

// Sweep purges transactions orphaned by an interrupted cascade delete.
func (a *Auditor) Sweep(ctx context.Context) (int64, error) {
	n, err := a.store.PurgeOrphans(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.Info("purged orphaned transactions", "count", n)
	}
	return n, nil
}
