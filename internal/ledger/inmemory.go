package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// memState holds the documents. It is not safe for concurrent use on its own.
// While journaling, every write records how to undo itself.
type memState struct {
	wallets      map[string]Wallet
	transactions map[string]Transaction
	journal      []func()
	journaling   bool
}

func (s *memState) begin() {
	s.journal = s.journal[:0]
	s.journaling = true
}

func (s *memState) commit() {
	s.journal = s.journal[:0]
	s.journaling = false
}

func (s *memState) rollback() {
	for i := len(s.journal) - 1; i >= 0; i-- {
		s.journal[i]()
	}
	s.commit()
}

func (s *memState) putWallet(w Wallet) {
	s.rememberWallet(w.ID)
	s.wallets[w.ID] = w
}

func (s *memState) dropWallet(id string) {
	s.rememberWallet(id)
	delete(s.wallets, id)
}

func (s *memState) rememberWallet(id string) {
	if !s.journaling {
		return
	}
	prev, existed := s.wallets[id]
	s.journal = append(s.journal, func() {
		if existed {
			s.wallets[id] = prev
		} else {
			delete(s.wallets, id)
		}
	})
}

func (s *memState) putTransaction(t Transaction) {
	s.rememberTransaction(t.ID)
	s.transactions[t.ID] = t
}

func (s *memState) dropTransaction(id string) {
	s.rememberTransaction(id)
	delete(s.transactions, id)
}

func (s *memState) rememberTransaction(id string) {
	if !s.journaling {
		return
	}
	prev, existed := s.transactions[id]
	s.journal = append(s.journal, func() {
		if existed {
			s.transactions[id] = prev
		} else {
			delete(s.transactions, id)
		}
	})
}

type inMemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

// NewInMemory creates a concurrency-safe in-memory store useful for tests and
// local development. WithinTx serializes units of work and undoes their
// writes on error.
func NewInMemory() TxStore {
	return &inMemoryStore{state: &memState{
		wallets:      make(map[string]Wallet),
		transactions: make(map[string]Transaction),
	}}
}

func (m *inMemoryStore) WithinTx(ctx context.Context, fn func(context.Context, Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.begin()
	defer func() {
		if r := recover(); r != nil {
			m.state.rollback()
			panic(r)
		}
	}()
	if err := fn(ctx, m.state); err != nil {
		m.state.rollback()
		return err
	}
	m.state.commit()
	return nil
}

func (m *inMemoryStore) read(fn func(*memState) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.state)
}

func (m *inMemoryStore) write(fn func(*memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (m *inMemoryStore) InsertWallet(ctx context.Context, wallet Wallet) error {
	return m.write(func(s *memState) error { return s.InsertWallet(ctx, wallet) })
}

func (m *inMemoryStore) FindWallet(ctx context.Context, id, ownerID string) (w Wallet, err error) {
	err = m.read(func(s *memState) error { w, err = s.FindWallet(ctx, id, ownerID); return err })
	return w, err
}

func (m *inMemoryStore) FindWallets(ctx context.Context, filter WalletFilter) (ws []Wallet, err error) {
	err = m.read(func(s *memState) error { ws, err = s.FindWallets(ctx, filter); return err })
	return ws, err
}

func (m *inMemoryStore) WalletExists(ctx context.Context, id, ownerID string) (ok bool, err error) {
	err = m.read(func(s *memState) error { ok, err = s.WalletExists(ctx, id, ownerID); return err })
	return ok, err
}

func (m *inMemoryStore) RenameWallet(ctx context.Context, id, ownerID, name string) (w Wallet, err error) {
	err = m.write(func(s *memState) error { w, err = s.RenameWallet(ctx, id, ownerID, name); return err })
	return w, err
}

func (m *inMemoryStore) IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (w Wallet, err error) {
	err = m.write(func(s *memState) error { w, err = s.IncrementBalance(ctx, id, delta); return err })
	return w, err
}

func (m *inMemoryStore) DeleteWallet(ctx context.Context, id, ownerID string) (w Wallet, err error) {
	err = m.write(func(s *memState) error { w, err = s.DeleteWallet(ctx, id, ownerID); return err })
	return w, err
}

func (m *inMemoryStore) InsertTransaction(ctx context.Context, tx Transaction) error {
	return m.write(func(s *memState) error { return s.InsertTransaction(ctx, tx) })
}

func (m *inMemoryStore) FindTransaction(ctx context.Context, id, ownerID string) (t Transaction, err error) {
	err = m.read(func(s *memState) error { t, err = s.FindTransaction(ctx, id, ownerID); return err })
	return t, err
}

func (m *inMemoryStore) FindTransactions(ctx context.Context, filter TransactionFilter) (ts []Transaction, err error) {
	err = m.read(func(s *memState) error { ts, err = s.FindTransactions(ctx, filter); return err })
	return ts, err
}

func (m *inMemoryStore) UpdateTransaction(ctx context.Context, id, ownerID string, patch TransactionPatch) (t Transaction, err error) {
	err = m.write(func(s *memState) error { t, err = s.UpdateTransaction(ctx, id, ownerID, patch); return err })
	return t, err
}

func (m *inMemoryStore) DeleteTransaction(ctx context.Context, id, ownerID string, expectValue *decimal.Decimal) (t Transaction, err error) {
	err = m.write(func(s *memState) error { t, err = s.DeleteTransaction(ctx, id, ownerID, expectValue); return err })
	return t, err
}

func (m *inMemoryStore) DeleteTransactions(ctx context.Context, filter TransactionFilter) (n int64, err error) {
	err = m.write(func(s *memState) error { n, err = s.DeleteTransactions(ctx, filter); return err })
	return n, err
}

func (m *inMemoryStore) SumTransactions(ctx context.Context, walletID string) (sum decimal.Decimal, n int64, err error) {
	err = m.read(func(s *memState) error { sum, n, err = s.SumTransactions(ctx, walletID); return err })
	return sum, n, err
}

func (m *inMemoryStore) PurgeOrphans(ctx context.Context) (n int64, err error) {
	err = m.write(func(s *memState) error { n, err = s.PurgeOrphans(ctx); return err })
	return n, err
}

func (s *memState) InsertWallet(_ context.Context, wallet Wallet) error {
	if _, exists := s.wallets[wallet.ID]; exists {
		return errors.New("wallet exists")
	}
	s.putWallet(wallet)
	return nil
}

func (s *memState) FindWallet(_ context.Context, id, ownerID string) (Wallet, error) {
	w, ok := s.wallets[id]
	if !ok || w.OwnerID != ownerID {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (s *memState) FindWallets(_ context.Context, filter WalletFilter) ([]Wallet, error) {
	out := make([]Wallet, 0)
	for _, w := range s.wallets {
		if filter.ID != "" && w.ID != filter.ID {
			continue
		}
		if filter.OwnerID != "" && w.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *memState) WalletExists(_ context.Context, id, ownerID string) (bool, error) {
	w, ok := s.wallets[id]
	return ok && w.OwnerID == ownerID, nil
}

func (s *memState) RenameWallet(ctx context.Context, id, ownerID, name string) (Wallet, error) {
	w, err := s.FindWallet(ctx, id, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	w.Name = name
	s.putWallet(w)
	return w, nil
}

func (s *memState) IncrementBalance(_ context.Context, id string, delta decimal.Decimal) (Wallet, error) {
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	w.Balance = w.Balance.Add(delta)
	s.putWallet(w)
	return w, nil
}

func (s *memState) DeleteWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	w, err := s.FindWallet(ctx, id, ownerID)
	if err != nil {
		return Wallet{}, err
	}
	s.dropWallet(id)
	return w, nil
}

func (s *memState) InsertTransaction(_ context.Context, tx Transaction) error {
	if _, exists := s.transactions[tx.ID]; exists {
		return errors.New("transaction exists")
	}
	s.putTransaction(tx)
	return nil
}

func (s *memState) FindTransaction(_ context.Context, id, ownerID string) (Transaction, error) {
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return Transaction{}, ErrNotFound
	}
	return t, nil
}

func (s *memState) FindTransactions(_ context.Context, filter TransactionFilter) ([]Transaction, error) {
	out := make([]Transaction, 0)
	for _, t := range s.transactions {
		if matches(t, filter) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *memState) UpdateTransaction(ctx context.Context, id, ownerID string, patch TransactionPatch) (Transaction, error) {
	t, err := s.FindTransaction(ctx, id, ownerID)
	if err != nil {
		return Transaction{}, err
	}
	if patch.ExpectValue != nil && !t.Value.Equal(*patch.ExpectValue) {
		return Transaction{}, ErrConflict
	}
	if patch.Note != nil {
		t.Note = *patch.Note
	}
	if patch.Value != nil {
		t.Value = *patch.Value
	}
	s.putTransaction(t)
	return t, nil
}

func (s *memState) DeleteTransaction(ctx context.Context, id, ownerID string, expectValue *decimal.Decimal) (Transaction, error) {
	t, err := s.FindTransaction(ctx, id, ownerID)
	if err != nil {
		return Transaction{}, err
	}
	if expectValue != nil && !t.Value.Equal(*expectValue) {
		return Transaction{}, ErrConflict
	}
	s.dropTransaction(id)
	return t, nil
}

func (s *memState) DeleteTransactions(_ context.Context, filter TransactionFilter) (int64, error) {
	if filter.empty() {
		return 0, errors.New("refusing to delete transactions without a filter")
	}
	var n int64
	for id, t := range s.transactions {
		if matches(t, filter) {
			s.dropTransaction(id)
			n++
		}
	}
	return n, nil
}

func (s *memState) SumTransactions(_ context.Context, walletID string) (decimal.Decimal, int64, error) {
	sum := decimal.Zero
	var n int64
	for _, t := range s.transactions {
		if t.WalletID == walletID {
			sum = sum.Add(t.Value)
			n++
		}
	}
	return sum, n, nil
}

func (s *memState) PurgeOrphans(_ context.Context) (int64, error) {
	var n int64
	for id, t := range s.transactions {
		if _, ok := s.wallets[t.WalletID]; !ok {
			s.dropTransaction(id)
			n++
		}
	}
	return n, nil
}

func matches(t Transaction, filter TransactionFilter) bool {
	if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
		return false
	}
	if filter.WalletID != "" && t.WalletID != filter.WalletID {
		return false
	}
	return true
}
