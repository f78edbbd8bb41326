package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pocketledger/pocketledger/internal/notification"
)

// CreateTransactionInput captures a transaction posted against a wallet.
// Value is already parsed; an invalid Value means the field was absent.
type CreateTransactionInput struct {
	WalletID string
	OwnerID  string
	Value    decimal.NullDecimal
	Note     string
}

// UpdateTransactionInput changes the value and/or the note of a transaction.
type UpdateTransactionInput struct {
	ID      string
	OwnerID string
	Value   decimal.NullDecimal
	Note    *string
}

// CreateTransaction stores a transaction and adds its value to the wallet
// balance as one logical unit.
func (s *Service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (Transaction, error) {
	ok, err := ownsWallet(ctx, s.store, input.WalletID, input.OwnerID)
	if err != nil {
		return Transaction{}, err
	}
	if !ok {
		return Transaction{}, ErrInvalidWallet
	}
	if !input.Value.Valid {
		return Transaction{}, invalid("value", "is required")
	}

	tx := Transaction{
		ID:        s.newID(),
		Note:      strings.TrimSpace(input.Note),
		Value:     input.Value.Decimal,
		Timestamp: s.now().UTC(),
		WalletID:  input.WalletID,
		OwnerID:   input.OwnerID,
	}

	if txs, ok := s.txStore(); ok {
		err = txs.WithinTx(ctx, func(ctx context.Context, st Store) error {
			return postTransaction(ctx, st, tx)
		})
	} else {
		err = s.postTransactionCompensating(ctx, tx)
	}
	if err != nil {
		return Transaction{}, err
	}

	s.publish(ctx, notification.Message{
		Kind:          notification.KindTransactionCreated,
		OwnerID:       tx.OwnerID,
		WalletID:      tx.WalletID,
		TransactionID: tx.ID,
		Amount:        tx.Value.String(),
	})
	return tx, nil
}

func postTransaction(ctx context.Context, st Store, tx Transaction) error {
	if err := st.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if _, err := applyDelta(ctx, st, tx.WalletID, tx.Value); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidWallet
		}
		return err
	}
	return nil
}

// postTransactionCompensating is the create path for stores without
// transactions: insert, then apply the delta, deleting the record again if
// the delta cannot be applied.
func (s *Service) postTransactionCompensating(ctx context.Context, tx Transaction) error {
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	_, err := applyDelta(ctx, s.store, tx.WalletID, tx.Value)
	if err == nil {
		return nil
	}

	if _, undoErr := s.store.DeleteTransaction(ctx, tx.ID, tx.OwnerID, nil); undoErr != nil {
		return s.partialFailure(ctx, tx.OwnerID, &PartialFailureError{
			Op:        "create transaction",
			Completed: "transaction " + tx.ID + " stored",
			Failed:    "balance update and rollback",
			WalletID:  tx.WalletID,
			Err:       errors.Join(err, undoErr),
		})
	}
	s.logger.Warn("rolled back transaction insert", "transaction_id", tx.ID, "wallet_id", tx.WalletID, "error", err)

	if errors.Is(err, ErrNotFound) {
		return ErrInvalidWallet
	}
	return err
}

// UpdateTransaction changes a transaction and reconciles the wallet balance
// by newValue - oldValue.
func (s *Service) UpdateTransaction(ctx context.Context, input UpdateTransactionInput) (Transaction, error) {
	if !input.Value.Valid && input.Note == nil {
		return Transaction{}, invalid("value", "value or note is required")
	}
	patch := TransactionPatch{}
	if input.Note != nil {
		note := strings.TrimSpace(*input.Note)
		patch.Note = &note
	}
	if input.Value.Valid {
		v := input.Value.Decimal
		patch.Value = &v
	}

	var (
		updated Transaction
		delta   decimal.Decimal
		err     error
	)
	if txs, ok := s.txStore(); ok {
		err = txs.WithinTx(ctx, func(ctx context.Context, st Store) error {
			updated, delta, err = reviseTransaction(ctx, st, input.ID, input.OwnerID, patch)
			return err
		})
	} else {
		updated, delta, err = s.reviseTransactionOptimistic(ctx, input.ID, input.OwnerID, patch)
	}
	if err != nil {
		return Transaction{}, err
	}

	s.publish(ctx, notification.Message{
		Kind:          notification.KindTransactionUpdated,
		OwnerID:       updated.OwnerID,
		WalletID:      updated.WalletID,
		TransactionID: updated.ID,
		Amount:        delta.String(),
	})
	return updated, nil
}

func reviseTransaction(ctx context.Context, st Store, id, ownerID string, patch TransactionPatch) (Transaction, decimal.Decimal, error) {
	current, err := st.FindTransaction(ctx, id, ownerID)
	if err != nil {
		return Transaction{}, decimal.Zero, err
	}

	delta := decimal.Zero
	if patch.Value != nil {
		delta = patch.Value.Sub(current.Value)
	}
	if !delta.IsZero() {
		if _, err := applyDelta(ctx, st, current.WalletID, delta); err != nil {
			return Transaction{}, decimal.Zero, err
		}
	}

	updated, err := st.UpdateTransaction(ctx, id, ownerID, patch)
	if err != nil {
		return Transaction{}, decimal.Zero, err
	}
	return updated, delta, nil
}

// reviseTransactionOptimistic applies the delta first and then persists the
// new value with a compare-and-set on the value it was computed from. A lost
// race reverses the delta and starts over.
func (s *Service) reviseTransactionOptimistic(ctx context.Context, id, ownerID string, patch TransactionPatch) (Transaction, decimal.Decimal, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		current, err := s.store.FindTransaction(ctx, id, ownerID)
		if err != nil {
			return Transaction{}, decimal.Zero, err
		}

		attemptPatch := patch
		delta := decimal.Zero
		if patch.Value != nil {
			delta = patch.Value.Sub(current.Value)
			expect := current.Value
			attemptPatch.ExpectValue = &expect
		}

		if !delta.IsZero() {
			if _, err := applyDelta(ctx, s.store, current.WalletID, delta); err != nil {
				return Transaction{}, decimal.Zero, err
			}
		}

		updated, err := s.store.UpdateTransaction(ctx, id, ownerID, attemptPatch)
		if err == nil {
			return updated, delta, nil
		}

		if !delta.IsZero() {
			if _, undoErr := applyDelta(ctx, s.store, current.WalletID, delta.Neg()); undoErr != nil {
				return Transaction{}, decimal.Zero, s.partialFailure(ctx, ownerID, &PartialFailureError{
					Op:        "update transaction",
					Completed: "balance adjusted by " + delta.String(),
					Failed:    "value persist and balance rollback",
					WalletID:  current.WalletID,
					Err:       errors.Join(err, undoErr),
				})
			}
		}
		if !errors.Is(err, ErrConflict) {
			return Transaction{}, decimal.Zero, err
		}
		s.logger.Debug("transaction update lost a race, retrying", "transaction_id", id, "attempt", attempt+1)
	}
	return Transaction{}, decimal.Zero, fmt.Errorf("update transaction %s: %w: %w", id, ErrTransient, ErrConflict)
}

// DeleteTransaction removes a transaction and subtracts its value from the
// wallet. Deleting an unknown id returns ErrNotFound and changes nothing.
func (s *Service) DeleteTransaction(ctx context.Context, id, ownerID string) (Transaction, error) {
	var (
		removed Transaction
		err     error
	)
	if txs, ok := s.txStore(); ok {
		err = txs.WithinTx(ctx, func(ctx context.Context, st Store) error {
			removed, err = s.removeTransaction(ctx, st, id, ownerID)
			return err
		})
	} else {
		removed, err = s.removeTransactionOptimistic(ctx, id, ownerID)
	}
	if err != nil {
		return Transaction{}, err
	}

	s.publish(ctx, notification.Message{
		Kind:          notification.KindTransactionDeleted,
		OwnerID:       removed.OwnerID,
		WalletID:      removed.WalletID,
		TransactionID: removed.ID,
		Amount:        removed.Value.Neg().String(),
	})
	return removed, nil
}

func (s *Service) removeTransaction(ctx context.Context, st Store, id, ownerID string) (Transaction, error) {
	current, err := st.FindTransaction(ctx, id, ownerID)
	if err != nil {
		return Transaction{}, err
	}
	if _, err := applyDelta(ctx, st, current.WalletID, current.Value.Neg()); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return Transaction{}, err
		}
		s.logger.Warn("deleting orphaned transaction", "transaction_id", id, "wallet_id", current.WalletID)
	}
	return st.DeleteTransaction(ctx, id, ownerID, nil)
}

// removeTransactionOptimistic corrects the balance before removing the record
// so a failure can never leave a deleted transaction counted in the balance.
func (s *Service) removeTransactionOptimistic(ctx context.Context, id, ownerID string) (Transaction, error) {
	for attempt := 0; attempt < s.retries; attempt++ {
		current, err := s.store.FindTransaction(ctx, id, ownerID)
		if err != nil {
			return Transaction{}, err
		}

		delta := current.Value.Neg()
		applied := true
		if _, err := applyDelta(ctx, s.store, current.WalletID, delta); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return Transaction{}, err
			}
			applied = false
			s.logger.Warn("deleting orphaned transaction", "transaction_id", id, "wallet_id", current.WalletID)
		}

		expect := current.Value
		removed, err := s.store.DeleteTransaction(ctx, id, ownerID, &expect)
		if err == nil {
			return removed, nil
		}

		if applied {
			if _, undoErr := applyDelta(ctx, s.store, current.WalletID, current.Value); undoErr != nil {
				return Transaction{}, s.partialFailure(ctx, ownerID, &PartialFailureError{
					Op:        "delete transaction",
					Completed: "balance adjusted by " + delta.String(),
					Failed:    "record removal and balance rollback",
					WalletID:  current.WalletID,
					Err:       errors.Join(err, undoErr),
				})
			}
		}
		if !errors.Is(err, ErrConflict) {
			return Transaction{}, err
		}
		s.logger.Debug("transaction delete lost a race, retrying", "transaction_id", id, "attempt", attempt+1)
	}
	return Transaction{}, fmt.Errorf("delete transaction %s: %w: %w", id, ErrTransient, ErrConflict)
}

// GetTransaction returns one of the owner's transactions.
func (s *Service) GetTransaction(ctx context.Context, id, ownerID string) (Transaction, error) {
	if ownerID == "" {
		return Transaction{}, ErrNotFound
	}
	return s.store.FindTransaction(ctx, id, ownerID)
}

// ListTransactions returns every transaction of the owner, oldest first.
func (s *Service) ListTransactions(ctx context.Context, ownerID string) ([]Transaction, error) {
	if ownerID == "" {
		return nil, ErrNotFound
	}
	return s.store.FindTransactions(ctx, TransactionFilter{OwnerID: ownerID})
}

// ListWalletTransactions returns the transactions of one of the owner's wallets.
func (s *Service) ListWalletTransactions(ctx context.Context, walletID, ownerID string) ([]Transaction, error) {
	ok, err := ownsWallet(ctx, s.store, walletID, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return s.store.FindTransactions(ctx, TransactionFilter{OwnerID: ownerID, WalletID: walletID})
}
