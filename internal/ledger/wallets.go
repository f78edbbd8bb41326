package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pocketledger/pocketledger/internal/notification"
)

const openingBalanceNote = "Opening balance"

// CreateWalletInput captures data required to create a wallet.
type CreateWalletInput struct {
	OwnerID        string
	Name           string
	OpeningBalance decimal.Decimal
}

// CreateWallet stores a new wallet. A non-zero opening balance is recorded
// as the wallet's first transaction so the balance invariant holds from the
// start.
func (s *Service) CreateWallet(ctx context.Context, input CreateWalletInput) (Wallet, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Wallet{}, invalid("name", "is required")
	}
	if input.OwnerID == "" {
		return Wallet{}, invalid("owner_id", "is required")
	}

	now := s.now().UTC()
	wallet := Wallet{
		ID:        s.newID(),
		Name:      name,
		Balance:   input.OpeningBalance,
		OwnerID:   input.OwnerID,
		CreatedAt: now,
	}

	var opening *Transaction
	if !input.OpeningBalance.IsZero() {
		opening = &Transaction{
			ID:        s.newID(),
			Note:      openingBalanceNote,
			Value:     input.OpeningBalance,
			Timestamp: now,
			WalletID:  wallet.ID,
			OwnerID:   wallet.OwnerID,
		}
	}

	var err error
	if txs, ok := s.txStore(); ok {
		err = txs.WithinTx(ctx, func(ctx context.Context, st Store) error {
			return insertWallet(ctx, st, wallet, opening)
		})
	} else {
		err = s.insertWalletCompensating(ctx, wallet, opening)
	}
	if err != nil {
		return Wallet{}, err
	}

	s.publish(ctx, notification.Message{
		Kind:     notification.KindWalletCreated,
		OwnerID:  wallet.OwnerID,
		WalletID: wallet.ID,
		Amount:   wallet.Balance.String(),
	})
	return wallet, nil
}

func insertWallet(ctx context.Context, st Store, wallet Wallet, opening *Transaction) error {
	if err := st.InsertWallet(ctx, wallet); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	if opening == nil {
		return nil
	}
	if err := st.InsertTransaction(ctx, *opening); err != nil {
		return fmt.Errorf("insert opening balance: %w", err)
	}
	return nil
}

func (s *Service) insertWalletCompensating(ctx context.Context, wallet Wallet, opening *Transaction) error {
	if err := s.store.InsertWallet(ctx, wallet); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	if opening == nil {
		return nil
	}
	err := s.store.InsertTransaction(ctx, *opening)
	if err == nil {
		return nil
	}
	if _, undoErr := s.store.DeleteWallet(ctx, wallet.ID, wallet.OwnerID); undoErr != nil {
		return s.partialFailure(ctx, wallet.OwnerID, &PartialFailureError{
			Op:        "create wallet",
			Completed: "wallet stored with opening balance",
			Failed:    "opening transaction and rollback",
			WalletID:  wallet.ID,
			Err:       errors.Join(err, undoErr),
		})
	}
	return fmt.Errorf("insert opening balance: %w", err)
}

// GetWallet returns one of the owner's wallets.
func (s *Service) GetWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, ErrNotFound
	}
	return s.store.FindWallet(ctx, id, ownerID)
}

// ListWallets returns all wallets of the owner.
func (s *Service) ListWallets(ctx context.Context, ownerID string) ([]Wallet, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	return s.store.FindWallets(ctx, WalletFilter{OwnerID: ownerID})
}

// RenameWallet changes the wallet name. The balance is never client-writable.
func (s *Service) RenameWallet(ctx context.Context, id, ownerID, name string) (Wallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Wallet{}, invalid("name", "is required")
	}
	if ownerID == "" {
		return Wallet{}, ErrNotFound
	}
	return s.store.RenameWallet(ctx, id, ownerID, name)
}

// DeleteWallet is the cascade deleter: it removes the wallet first and then
// every transaction referencing it. Without store transactions a failed
// purge is reported as a PartialFailureError.
func (s *Service) DeleteWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	if ownerID == "" {
		return Wallet{}, ErrNotFound
	}

	var (
		deleted Wallet
		purged  int64
		err     error
	)
	if txs, ok := s.txStore(); ok {
		err = txs.WithinTx(ctx, func(ctx context.Context, st Store) error {
			deleted, purged, err = cascadeDelete(ctx, st, id, ownerID)
			return err
		})
	} else {
		deleted, err = s.store.DeleteWallet(ctx, id, ownerID)
		if err != nil {
			return Wallet{}, err
		}
		purged, err = s.store.DeleteTransactions(ctx, TransactionFilter{WalletID: id})
		if err != nil {
			return Wallet{}, s.partialFailure(ctx, ownerID, &PartialFailureError{
				Op:        "delete wallet",
				Completed: "wallet removed",
				Failed:    "transaction purge",
				WalletID:  id,
				Err:       err,
			})
		}
	}
	if err != nil {
		return Wallet{}, err
	}

	s.logger.Info("wallet deleted", "wallet_id", id, "owner_id", ownerID, "purged_transactions", purged)
	s.publish(ctx, notification.Message{
		Kind:     notification.KindWalletDeleted,
		OwnerID:  ownerID,
		WalletID: id,
		Amount:   deleted.Balance.Neg().String(),
	})
	return deleted, nil
}

func cascadeDelete(ctx context.Context, st Store, id, ownerID string) (Wallet, int64, error) {
	deleted, err := st.DeleteWallet(ctx, id, ownerID)
	if err != nil {
		return Wallet{}, 0, err
	}
	purged, err := st.DeleteTransactions(ctx, TransactionFilter{WalletID: id})
	if err != nil {
		return Wallet{}, 0, fmt.Errorf("purge transactions of wallet %s: %w", id, err)
	}
	return deleted, purged, nil
}
