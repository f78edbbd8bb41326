package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInMemoryStore_WithinTxDiscardsOnError(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	w := Wallet{ID: "w-1", Name: "Cash", Balance: dec("10"), OwnerID: "u-1"}
	if err := st.InsertWallet(ctx, w); err != nil {
		t.Fatalf("insert wallet: %v", err)
	}

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.IncrementBalance(ctx, w.ID, dec("5")); err != nil {
			return err
		}
		if err := tx.InsertTransaction(ctx, Transaction{ID: "t-1", Value: dec("5"), WalletID: w.ID, OwnerID: w.OwnerID}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := st.FindWallet(ctx, w.ID, w.OwnerID)
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if !got.Balance.Equal(dec("10")) {
		t.Fatalf("expected balance 10 after rollback, got %s", got.Balance)
	}
	if _, err := st.FindTransaction(ctx, "t-1", "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transaction to be discarded, got %v", err)
	}
}

func TestInMemoryStore_WithinTxRestoresUpdatesAndDeletes(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	st.InsertWallet(ctx, Wallet{ID: "w-1", Name: "Cash", Balance: dec("3"), OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-1", Value: dec("1"), WalletID: "w-1", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-2", Value: dec("2"), WalletID: "w-1", OwnerID: "u-1"})

	err := st.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if _, err := tx.RenameWallet(ctx, "w-1", "u-1", "Savings"); err != nil {
			return err
		}
		next := dec("9")
		if _, err := tx.UpdateTransaction(ctx, "t-1", "u-1", TransactionPatch{Value: &next}); err != nil {
			return err
		}
		if _, err := tx.DeleteWallet(ctx, "w-1", "u-1"); err != nil {
			return err
		}
		if _, err := tx.DeleteTransactions(ctx, TransactionFilter{WalletID: "w-1"}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected abort")
	}

	w, err := st.FindWallet(ctx, "w-1", "u-1")
	if err != nil {
		t.Fatalf("wallet must be restored: %v", err)
	}
	if w.Name != "Cash" {
		t.Fatalf("expected name Cash, got %s", w.Name)
	}
	sum, n, _ := st.SumTransactions(ctx, "w-1")
	if n != 2 || !sum.Equal(dec("3")) {
		t.Fatalf("expected both transactions restored with sum 3, got %s over %d", sum, n)
	}
}

func TestInMemoryStore_WithinTxRestoresOnPanic(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	st.InsertWallet(ctx, Wallet{ID: "w-1", Name: "Cash", Balance: dec("3"), OwnerID: "u-1"})

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		st.WithinTx(ctx, func(ctx context.Context, tx Store) error {
			tx.IncrementBalance(ctx, "w-1", dec("100"))
			panic("boom")
		})
	}()

	w, err := st.FindWallet(ctx, "w-1", "u-1")
	if err != nil {
		t.Fatalf("find wallet: %v", err)
	}
	if !w.Balance.Equal(dec("3")) {
		t.Fatalf("expected balance 3 after panic, got %s", w.Balance)
	}
	if _, err := st.IncrementBalance(ctx, "w-1", dec("1")); err != nil {
		t.Fatalf("store must stay usable after a panic: %v", err)
	}
}

func TestInMemoryStore_CompareAndSet(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	if err := st.InsertTransaction(ctx, Transaction{ID: "t-1", Value: dec("100"), WalletID: "w-1", OwnerID: "u-1"}); err != nil {
		t.Fatalf("insert transaction: %v", err)
	}

	stale, next := dec("99"), dec("120")
	if _, err := st.UpdateTransaction(ctx, "t-1", "u-1", TransactionPatch{Value: &next, ExpectValue: &stale}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale update, got %v", err)
	}
	if _, err := st.DeleteTransaction(ctx, "t-1", "u-1", &stale); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on stale delete, got %v", err)
	}

	current := dec("100")
	updated, err := st.UpdateTransaction(ctx, "t-1", "u-1", TransactionPatch{Value: &next, ExpectValue: &current})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Value.Equal(next) {
		t.Fatalf("expected value 120, got %s", updated.Value)
	}
	if _, err := st.DeleteTransaction(ctx, "t-1", "u-1", &next); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestInMemoryStore_OwnerScopedLookups(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	st.InsertWallet(ctx, Wallet{ID: "w-1", Name: "Cash", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-1", Value: dec("1"), WalletID: "w-1", OwnerID: "u-1"})

	if _, err := st.FindWallet(ctx, "w-1", "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign wallet, got %v", err)
	}
	if ok, _ := st.WalletExists(ctx, "w-1", ""); ok {
		t.Fatal("empty owner must not match")
	}
	if _, err := st.FindTransaction(ctx, "t-1", "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign transaction, got %v", err)
	}
	if _, err := st.DeleteWallet(ctx, "w-1", "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected foreign delete to miss, got %v", err)
	}
}

func TestInMemoryStore_DeleteTransactionsRequiresFilter(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	st.InsertTransaction(ctx, Transaction{ID: "t-1", WalletID: "w-1", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-2", WalletID: "w-2", OwnerID: "u-1"})

	if _, err := st.DeleteTransactions(ctx, TransactionFilter{}); err == nil {
		t.Fatal("expected empty filter to be rejected")
	}
	n, err := st.DeleteTransactions(ctx, TransactionFilter{WalletID: "w-1"})
	if err != nil {
		t.Fatalf("delete transactions: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion, got %d", n)
	}
	if _, err := st.FindTransaction(ctx, "t-2", "u-1"); err != nil {
		t.Fatalf("unrelated transaction removed: %v", err)
	}
}

func TestInMemoryStore_ListsOldestFirst(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	st.InsertTransaction(ctx, Transaction{ID: "b", Timestamp: base.Add(time.Minute), OwnerID: "u-1", WalletID: "w-1"})
	st.InsertTransaction(ctx, Transaction{ID: "c", Timestamp: base, OwnerID: "u-1", WalletID: "w-1"})
	st.InsertTransaction(ctx, Transaction{ID: "a", Timestamp: base.Add(time.Minute), OwnerID: "u-1", WalletID: "w-1"})

	list, err := st.FindTransactions(ctx, TransactionFilter{OwnerID: "u-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	order := ""
	for _, tx := range list {
		order += tx.ID
	}
	if order != "cab" {
		t.Fatalf("unexpected order %q", order)
	}
}

func TestInMemoryStore_SumAndPurge(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	st.InsertWallet(ctx, Wallet{ID: "w-1", Name: "Cash", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-1", Value: dec("2.50"), WalletID: "w-1", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-2", Value: dec("-1.25"), WalletID: "w-1", OwnerID: "u-1"})
	st.InsertTransaction(ctx, Transaction{ID: "t-3", Value: dec("7"), WalletID: "gone", OwnerID: "u-1"})

	sum, n, err := st.SumTransactions(ctx, "w-1")
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if n != 2 || !sum.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("unexpected sum %s over %d", sum, n)
	}

	purged, err := st.PurgeOrphans(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 orphan, got %d", purged)
	}
}
