package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	walletColumns      = `id::text, name, balance::text, owner_id::text, created_at`
	transactionColumns = `id::text, note, value::text, created_at, wallet_id::text, owner_id::text`

	rollbackTimeout = 2 * time.Second
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore persists wallets and transactions in PostgreSQL. Balance
// increments are single UPDATE statements so concurrent postings never lose
// an update.
type PostgresStore struct {
	pgQueries
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store. timeout bounds each
// statement outside a transaction and the whole unit of work under WithinTx,
// lock waits included; zero disables it.
func NewPostgresStore(db *pgxpool.Pool, timeout time.Duration) *PostgresStore {
	return &PostgresStore{pgQueries: pgQueries{q: db, timeout: timeout}, db: db}
}

// WithinTx runs fn inside a database transaction. Transactions read through
// the provided store are locked until commit. fn must use the context it is
// given; it expires with the store timeout.
func (p *PostgresStore) WithinTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
		defer cancel()
		tx.Rollback(rbCtx) // nolint:errcheck
	}()

	if err := fn(ctx, &pgQueries{q: tx, lock: true}); err != nil {
		if ctx.Err() != nil {
			return classify(ctx.Err())
		}
		return err
	}
	return classify(tx.Commit(ctx))
}

type pgQueries struct {
	q       querier
	lock    bool
	timeout time.Duration
}

func (p *pgQueries) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *pgQueries) InsertWallet(ctx context.Context, wallet Wallet) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.q.Exec(ctx, `INSERT INTO wallets (id, name, balance, owner_id, created_at)
        VALUES ($1, $2, $3::text::numeric, $4, $5)`,
		wallet.ID, wallet.Name, wallet.Balance.String(), wallet.OwnerID, wallet.CreatedAt)
	return classify(err)
}

func (p *pgQueries) FindWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	if !validIDs(id, ownerID) {
		return Wallet{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return scanWallet(row)
}

func (p *pgQueries) FindWallets(ctx context.Context, filter WalletFilter) ([]Wallet, error) {
	w := where{valid: true}
	if filter.ID != "" {
		w.eq("id", filter.ID)
	}
	if filter.OwnerID != "" {
		w.eq("owner_id", filter.OwnerID)
	}
	if !w.valid {
		return []Wallet{}, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	rows, err := p.q.Query(ctx, `SELECT `+walletColumns+` FROM wallets`+w.sql()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]Wallet, 0)
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}
	return out, classify(rows.Err())
}

func (p *pgQueries) WalletExists(ctx context.Context, id, ownerID string) (bool, error) {
	if !validIDs(id, ownerID) {
		return false, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var exists bool
	err := p.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM wallets WHERE id = $1 AND owner_id = $2)`, id, ownerID).Scan(&exists)
	if err != nil {
		return false, classify(err)
	}
	return exists, nil
}

func (p *pgQueries) RenameWallet(ctx context.Context, id, ownerID, name string) (Wallet, error) {
	if !validIDs(id, ownerID) {
		return Wallet{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `UPDATE wallets SET name = $3 WHERE id = $1 AND owner_id = $2
        RETURNING `+walletColumns, id, ownerID, name)
	return scanWallet(row)
}

func (p *pgQueries) IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (Wallet, error) {
	if !validIDs(id) {
		return Wallet{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2::text::numeric WHERE id = $1
        RETURNING `+walletColumns, id, delta.String())
	return scanWallet(row)
}

func (p *pgQueries) DeleteWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	if !validIDs(id, ownerID) {
		return Wallet{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `DELETE FROM wallets WHERE id = $1 AND owner_id = $2
        RETURNING `+walletColumns, id, ownerID)
	return scanWallet(row)
}

func (p *pgQueries) InsertTransaction(ctx context.Context, tx Transaction) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.q.Exec(ctx, `INSERT INTO transactions (id, note, value, created_at, wallet_id, owner_id)
        VALUES ($1, $2, $3::text::numeric, $4, $5, $6)`,
		tx.ID, tx.Note, tx.Value.String(), tx.Timestamp, tx.WalletID, tx.OwnerID)
	return classify(err)
}

func (p *pgQueries) FindTransaction(ctx context.Context, id, ownerID string) (Transaction, error) {
	if !validIDs(id, ownerID) {
		return Transaction{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND owner_id = $2`
	if p.lock {
		query += ` FOR UPDATE`
	}
	return scanTransaction(p.q.QueryRow(ctx, query, id, ownerID))
}

func (p *pgQueries) FindTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	w := transactionWhere(filter)
	if !w.valid {
		return []Transaction{}, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	rows, err := p.q.Query(ctx, `SELECT `+transactionColumns+` FROM transactions`+w.sql()+` ORDER BY created_at, id`, w.args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, classify(rows.Err())
}

func (p *pgQueries) UpdateTransaction(ctx context.Context, id, ownerID string, patch TransactionPatch) (Transaction, error) {
	if !validIDs(id, ownerID) {
		return Transaction{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `UPDATE transactions
        SET note = COALESCE($3, note), value = COALESCE($4::text::numeric, value)
        WHERE id = $1 AND owner_id = $2 AND ($5::text IS NULL OR value = $5::text::numeric)
        RETURNING `+transactionColumns,
		id, ownerID, patch.Note, decimalArg(patch.Value), decimalArg(patch.ExpectValue))
	tx, err := scanTransaction(row)
	if errors.Is(err, ErrNotFound) && patch.ExpectValue != nil {
		return Transaction{}, p.conflictOrMissing(ctx, id, ownerID)
	}
	return tx, err
}

func (p *pgQueries) DeleteTransaction(ctx context.Context, id, ownerID string, expectValue *decimal.Decimal) (Transaction, error) {
	if !validIDs(id, ownerID) {
		return Transaction{}, ErrNotFound
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.q.QueryRow(ctx, `DELETE FROM transactions
        WHERE id = $1 AND owner_id = $2 AND ($3::text IS NULL OR value = $3::text::numeric)
        RETURNING `+transactionColumns, id, ownerID, decimalArg(expectValue))
	tx, err := scanTransaction(row)
	if errors.Is(err, ErrNotFound) && expectValue != nil {
		return Transaction{}, p.conflictOrMissing(ctx, id, ownerID)
	}
	return tx, err
}

// conflictOrMissing tells a failed compare-and-set apart from a missing row.
func (p *pgQueries) conflictOrMissing(ctx context.Context, id, ownerID string) error {
	var exists bool
	err := p.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1 AND owner_id = $2)`, id, ownerID).Scan(&exists)
	if err != nil {
		return classify(err)
	}
	if exists {
		return ErrConflict
	}
	return ErrNotFound
}

func (p *pgQueries) DeleteTransactions(ctx context.Context, filter TransactionFilter) (int64, error) {
	if filter.empty() {
		return 0, errors.New("refusing to delete transactions without a filter")
	}
	w := transactionWhere(filter)
	if !w.valid {
		return 0, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	tag, err := p.q.Exec(ctx, `DELETE FROM transactions`+w.sql(), w.args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func (p *pgQueries) SumTransactions(ctx context.Context, walletID string) (decimal.Decimal, int64, error) {
	if !validIDs(walletID) {
		return decimal.Zero, 0, nil
	}
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var (
		raw   string
		count int64
	)
	err := p.q.QueryRow(ctx, `SELECT COALESCE(SUM(value), 0)::text, COUNT(*) FROM transactions WHERE wallet_id = $1`, walletID).Scan(&raw, &count)
	if err != nil {
		return decimal.Zero, 0, classify(err)
	}
	sum, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, 0, fmt.Errorf("parse transaction sum %q: %w", raw, err)
	}
	return sum, count, nil
}

func (p *pgQueries) PurgeOrphans(ctx context.Context) (int64, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	tag, err := p.q.Exec(ctx, `DELETE FROM transactions t
        WHERE NOT EXISTS (SELECT 1 FROM wallets w WHERE w.id = t.wallet_id)`)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

func scanWallet(row rowScanner) (Wallet, error) {
	var (
		w       Wallet
		balance string
	)
	if err := row.Scan(&w.ID, &w.Name, &balance, &w.OwnerID, &w.CreatedAt); err != nil {
		return Wallet{}, classify(err)
	}
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return Wallet{}, fmt.Errorf("parse balance of wallet %s: %w", w.ID, err)
	}
	w.Balance = amount
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var (
		t     Transaction
		value string
	)
	if err := row.Scan(&t.ID, &t.Note, &value, &t.Timestamp, &t.WalletID, &t.OwnerID); err != nil {
		return Transaction{}, classify(err)
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return Transaction{}, fmt.Errorf("parse value of transaction %s: %w", t.ID, err)
	}
	t.Value = amount
	t.Timestamp = t.Timestamp.UTC()
	return t, nil
}

// where accumulates equality conditions on uuid columns. A malformed id
// matches no row, so the query is skipped and valid is false.
type where struct {
	conds []string
	args  []any
	valid bool
}

func (w *where) eq(column, id string) {
	if !validIDs(id) {
		w.valid = false
		return
	}
	w.args = append(w.args, id)
	w.conds = append(w.conds, column+" = $"+strconv.Itoa(len(w.args)))
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func transactionWhere(filter TransactionFilter) where {
	w := where{valid: true}
	if filter.OwnerID != "" {
		w.eq("owner_id", filter.OwnerID)
	}
	if filter.WalletID != "" {
		w.eq("wallet_id", filter.WalletID)
	}
	return w
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// classify maps driver errors onto the ledger taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57P01", pgErr.Code == "53300",
			strings.HasPrefix(pgErr.Code, "08"):
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case pgErr.Code == "22P02":
			return ErrNotFound
		}
	}
	return err
}
