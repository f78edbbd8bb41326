package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pocketledger/pocketledger/internal/notification"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func amount(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (r *recordingNotifier) Send(_ context.Context, msg notification.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingNotifier) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Kind)
	}
	return out
}

func newWallet(t *testing.T, svc *Service, owner, opening string) Wallet {
	t.Helper()
	w, err := svc.CreateWallet(context.Background(), CreateWalletInput{OwnerID: owner, Name: "Main", OpeningBalance: dec(opening)})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return w
}

func post(t *testing.T, svc *Service, w Wallet, value string) Transaction {
	t.Helper()
	tx, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: w.ID, OwnerID: w.OwnerID, Value: amount(value), Note: "test"})
	if err != nil {
		t.Fatalf("create transaction %s: %v", value, err)
	}
	return tx
}

func balanceOf(t *testing.T, svc *Service, w Wallet) decimal.Decimal {
	t.Helper()
	got, err := svc.GetWallet(context.Background(), w.ID, w.OwnerID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return got.Balance
}

func assertConsistent(t *testing.T, st Store, walletID string) {
	t.Helper()
	d, err := NewAuditor(st, nil).Check(context.Background(), walletID)
	if err != nil {
		t.Fatalf("audit wallet: %v", err)
	}
	if !d.Consistent() {
		t.Fatalf("wallet %s drifted: balance=%s sum=%s", walletID, d.Balance, d.Sum)
	}
}

func TestCreateWallet_OpeningBalanceIsATransaction(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)

	w := newWallet(t, svc, "u-1", "1000")
	if !w.Balance.Equal(dec("1000")) {
		t.Fatalf("expected opening balance 1000, got %s", w.Balance)
	}
	txs, err := svc.ListWalletTransactions(context.Background(), w.ID, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 || txs[0].Note != openingBalanceNote {
		t.Fatalf("expected one opening transaction, got %+v", txs)
	}
	assertConsistent(t, st, w.ID)

	empty := newWallet(t, svc, "u-1", "0")
	txs, _ = svc.ListWalletTransactions(context.Background(), empty.ID, "u-1")
	if len(txs) != 0 {
		t.Fatalf("zero opening balance must not create a transaction, got %d", len(txs))
	}
}

func TestCreateWallet_Validation(t *testing.T) {
	svc := NewService(NewInMemory(), nil, nil)
	_, err := svc.CreateWallet(context.Background(), CreateWalletInput{OwnerID: "u-1", Name: "   "})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
	_, err = svc.CreateWallet(context.Background(), CreateWalletInput{Name: "Cash"})
	if !errors.As(err, &verr) || verr.Field != "owner_id" {
		t.Fatalf("expected owner validation error, got %v", err)
	}
}

func TestCreateTransaction_AddsValueToBalance(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "1000")

	tx := post(t, svc, w, "500")
	if tx.WalletID != w.ID || tx.OwnerID != "u-1" || tx.Timestamp.IsZero() {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("1500")) {
		t.Fatalf("expected balance 1500, got %s", got)
	}
	assertConsistent(t, st, w.ID)
}

func TestCreateTransaction_ForeignWalletRejected(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "1000")

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: w.ID, OwnerID: "u-2", Value: amount("500")})
	if !errors.Is(err, ErrInvalidWallet) {
		t.Fatalf("expected ErrInvalidWallet, got %v", err)
	}
	// the ownership check wins over a missing value
	_, err = svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: w.ID, OwnerID: "u-2"})
	if !errors.Is(err, ErrInvalidWallet) {
		t.Fatalf("expected ErrInvalidWallet without value, got %v", err)
	}
	_, err = svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: "missing", OwnerID: "u-1", Value: amount("5")})
	if !errors.Is(err, ErrInvalidWallet) {
		t.Fatalf("expected ErrInvalidWallet for unknown wallet, got %v", err)
	}

	if got := balanceOf(t, svc, w); !got.Equal(dec("1000")) {
		t.Fatalf("balance changed to %s", got)
	}
	_, n, _ := st.SumTransactions(context.Background(), w.ID)
	if n != 1 {
		t.Fatalf("expected only the opening transaction, got %d", n)
	}
}

func TestCreateTransaction_RequiresValue(t *testing.T) {
	svc := NewService(NewInMemory(), nil, nil)
	w := newWallet(t, svc, "u-1", "0")

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: w.ID, OwnerID: "u-1", Note: "lunch"})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "value" {
		t.Fatalf("expected value validation error, got %v", err)
	}
}

func TestDeleteTransaction_SubtractsValueOnce(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "1000")
	tx := post(t, svc, w, "100")
	if got := balanceOf(t, svc, w); !got.Equal(dec("1100")) {
		t.Fatalf("expected 1100, got %s", got)
	}

	removed, err := svc.DeleteTransaction(context.Background(), tx.ID, "u-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed.ID != tx.ID {
		t.Fatalf("unexpected removed transaction %+v", removed)
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("1000")) {
		t.Fatalf("expected 1000, got %s", got)
	}

	if _, err := svc.DeleteTransaction(context.Background(), tx.ID, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("1000")) {
		t.Fatalf("second delete changed balance to %s", got)
	}
	assertConsistent(t, st, w.ID)
}

func TestUpdateTransaction_AppliesDifference(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "1000")
	tx := post(t, svc, w, "200")

	updated, err := svc.UpdateTransaction(context.Background(), UpdateTransactionInput{ID: tx.ID, OwnerID: "u-1", Value: amount("50")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Value.Equal(dec("50")) || updated.Note != "test" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("1050")) {
		t.Fatalf("expected 1050, got %s", got)
	}

	note := "  groceries "
	updated, err = svc.UpdateTransaction(context.Background(), UpdateTransactionInput{ID: tx.ID, OwnerID: "u-1", Note: &note})
	if err != nil {
		t.Fatalf("note update: %v", err)
	}
	if updated.Note != "groceries" || !updated.Value.Equal(dec("50")) {
		t.Fatalf("unexpected note update %+v", updated)
	}
	if !updated.Timestamp.Equal(tx.Timestamp) || updated.WalletID != w.ID {
		t.Fatal("immutable fields changed")
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("1050")) {
		t.Fatalf("note update moved balance to %s", got)
	}

	var verr *ValidationError
	if _, err := svc.UpdateTransaction(context.Background(), UpdateTransactionInput{ID: tx.ID, OwnerID: "u-1"}); !errors.As(err, &verr) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}
	assertConsistent(t, st, w.ID)
}

func TestDeleteWallet_CascadesTransactions(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "0")
	other := newWallet(t, svc, "u-1", "0")
	post(t, svc, w, "10")
	post(t, svc, w, "20")
	kept := post(t, svc, other, "5")

	deleted, err := svc.DeleteWallet(context.Background(), w.ID, "u-1")
	if err != nil {
		t.Fatalf("delete wallet: %v", err)
	}
	if !deleted.Balance.Equal(dec("30")) {
		t.Fatalf("unexpected deleted wallet %+v", deleted)
	}
	if _, err := svc.GetWallet(context.Background(), w.ID, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wallet gone, got %v", err)
	}
	left, err := st.FindTransactions(context.Background(), TransactionFilter{WalletID: w.ID})
	if err != nil {
		t.Fatalf("find transactions: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected no transactions left, got %d", len(left))
	}
	if _, err := svc.GetTransaction(context.Background(), kept.ID, "u-1"); err != nil {
		t.Fatalf("other wallet's transaction removed: %v", err)
	}
	if _, err := svc.DeleteWallet(context.Background(), w.ID, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	ctx := context.Background()
	w := newWallet(t, svc, "u-1", "100")
	tx := post(t, svc, w, "40")

	if _, err := svc.GetWallet(ctx, w.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get wallet: expected not found, got %v", err)
	}
	if _, err := svc.RenameWallet(ctx, w.ID, "u-2", "Mine"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rename wallet: expected not found, got %v", err)
	}
	if _, err := svc.DeleteWallet(ctx, w.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete wallet: expected not found, got %v", err)
	}
	if _, err := svc.GetTransaction(ctx, tx.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get transaction: expected not found, got %v", err)
	}
	if _, err := svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: tx.ID, OwnerID: "u-2", Value: amount("1")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update transaction: expected not found, got %v", err)
	}
	if _, err := svc.DeleteTransaction(ctx, tx.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete transaction: expected not found, got %v", err)
	}
	if _, err := svc.ListWalletTransactions(ctx, w.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("list wallet transactions: expected not found, got %v", err)
	}
	list, err := svc.ListTransactions(ctx, "u-2")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list for other owner, got %d (%v)", len(list), err)
	}

	if got := balanceOf(t, svc, w); !got.Equal(dec("140")) {
		t.Fatalf("foreign calls changed balance to %s", got)
	}
	assertConsistent(t, st, w.ID)
}

func TestRenameWallet_KeepsBalance(t *testing.T) {
	svc := NewService(NewInMemory(), nil, nil)
	w := newWallet(t, svc, "u-1", "25")

	renamed, err := svc.RenameWallet(context.Background(), w.ID, "u-1", " Savings ")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Savings" || !renamed.Balance.Equal(dec("25")) {
		t.Fatalf("unexpected rename result %+v", renamed)
	}
	var verr *ValidationError
	if _, err := svc.RenameWallet(context.Background(), w.ID, "u-1", ""); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentCreates_NoLostUpdates(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	w := newWallet(t, svc, "u-1", "0")

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{WalletID: w.ID, OwnerID: "u-1", Value: amount("10")}); err != nil {
				t.Errorf("create: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := balanceOf(t, svc, w); !got.Equal(dec("500")) {
		t.Fatalf("expected 500, got %s", got)
	}
	assertConsistent(t, st, w.ID)
}

func TestServicePublishesEvents(t *testing.T) {
	rec := &recordingNotifier{}
	svc := NewService(NewInMemory(), rec, nil)
	w := newWallet(t, svc, "u-1", "0")
	tx := post(t, svc, w, "3")
	if _, err := svc.UpdateTransaction(context.Background(), UpdateTransactionInput{ID: tx.ID, OwnerID: "u-1", Value: amount("4")}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.DeleteTransaction(context.Background(), tx.ID, "u-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.DeleteWallet(context.Background(), w.ID, "u-1"); err != nil {
		t.Fatalf("delete wallet: %v", err)
	}

	want := []string{
		notification.KindWalletCreated,
		notification.KindTransactionCreated,
		notification.KindTransactionUpdated,
		notification.KindTransactionDeleted,
		notification.KindWalletDeleted,
	}
	got := rec.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
