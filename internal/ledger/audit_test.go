package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestAuditor_RepairsDrift(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	ctx := context.Background()
	w := newWallet(t, svc, "u-1", "100")
	post(t, svc, w, "25")

	if err := SeedDrift(ctx, st, w.ID, dec("7.5")); err != nil {
		t.Fatalf("seed drift: %v", err)
	}

	auditor := NewAuditor(st, nil)
	d, err := auditor.Check(ctx, w.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.Consistent() || !d.Amount().Equal(dec("7.5")) || d.Transactions != 2 {
		t.Fatalf("unexpected drift %+v", d)
	}

	before, err := auditor.Repair(ctx, w.ID)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !before.Amount().Equal(dec("7.5")) {
		t.Fatalf("repair should report the drift it fixed, got %s", before.Amount())
	}
	if got := balanceOf(t, svc, w); !got.Equal(dec("125")) {
		t.Fatalf("expected 125 after repair, got %s", got)
	}

	again, err := auditor.Repair(ctx, w.ID)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if !again.Consistent() {
		t.Fatalf("second repair found drift %s", again.Amount())
	}
}

func TestAuditor_CheckAll(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	ctx := context.Background()
	a := newWallet(t, svc, "u-1", "10")
	b := newWallet(t, svc, "u-2", "20")
	SeedDrift(ctx, st, b.ID, dec("-1"))

	drifts, err := NewAuditor(st, nil).CheckAll(ctx)
	if err != nil {
		t.Fatalf("check all: %v", err)
	}
	if len(drifts) != 2 {
		t.Fatalf("expected 2 wallets audited, got %d", len(drifts))
	}
	for _, d := range drifts {
		switch d.WalletID {
		case a.ID:
			if !d.Consistent() {
				t.Fatalf("wallet a drifted: %s", d.Amount())
			}
		case b.ID:
			if d.Consistent() || d.OwnerID != "u-2" {
				t.Fatalf("wallet b should drift: %+v", d)
			}
		}
	}
}

func TestAuditor_UnknownWallet(t *testing.T) {
	auditor := NewAuditor(NewInMemory(), nil)
	if _, err := auditor.Check(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := auditor.Repair(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on repair, got %v", err)
	}
}

func TestAuditor_Sweep(t *testing.T) {
	st := NewInMemory()
	svc := NewService(st, nil, nil)
	ctx := context.Background()
	w := newWallet(t, svc, "u-1", "5")
	if err := SeedOrphan(ctx, st, Transaction{ID: "orphan", Value: dec("3"), WalletID: "gone", OwnerID: "u-1"}); err != nil {
		t.Fatalf("seed orphan: %v", err)
	}

	n, err := NewAuditor(st, nil).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 orphan, got %d", n)
	}
	assertConsistent(t, st, w.ID)
}
