// Package ctl implements the ledgerctl maintenance commands: auditing the
// balance invariant, repairing drifted wallets, sweeping orphaned
// transactions and applying the schema.
package ctl

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/pocketledger/pocketledger/internal/infra"
	"github.com/pocketledger/pocketledger/internal/ledger"
)

// Env carries what every command needs. Open connects to the ledger store
// named by a database URL and returns a release func.
type Env struct {
	Open    func(ctx context.Context, databaseURL string) (ledger.Store, func(), error)
	Migrate func(ctx context.Context, databaseURL string) error
	Out     io.Writer
	Logger  *slog.Logger
}

// PostgresEnv returns an Env backed by PostgreSQL.
func PostgresEnv(logger *slog.Logger, storeTimeout time.Duration) *Env {
	return &Env{
		Open: func(ctx context.Context, url string) (ledger.Store, func(), error) {
			db, err := infra.NewPostgresPool(ctx, url, "ledgerctl")
			if err != nil {
				return nil, nil, err
			}
			return ledger.NewPostgresStore(db, storeTimeout), db.Close, nil
		},
		Migrate: func(ctx context.Context, url string) error {
			db, err := infra.NewPostgresPool(ctx, url, "ledgerctl")
			if err != nil {
				return err
			}
			defer db.Close()
			return infra.Migrate(ctx, db)
		},
		Out:    os.Stdout,
		Logger: logger,
	}
}

// Commands lists the ledgerctl subcommands bound to env.
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&auditCmd{env: env},
		&repairCmd{env: env},
		&sweepCmd{env: env},
		&migrateCmd{env: env},
	}
}

// dbFlag registers the shared -database-url flag.
func dbFlag(f *flag.FlagSet, dst *string) {
	f.StringVar(dst, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL (defaults to $DATABASE_URL).")
}

func (e *Env) auditor(ctx context.Context, url string) (*ledger.Auditor, func(), error) {
	if url == "" {
		return nil, nil, fmt.Errorf("a database URL is required")
	}
	st, release, err := e.Open(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return ledger.NewAuditor(st, e.Logger), release, nil
}

func (e *Env) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func (e *Env) printDrift(d ledger.Drift) {
	state := "ok"
	if !d.Consistent() {
		state = "DRIFT " + d.Amount().String()
	}
	fmt.Fprintf(e.Out, "%s\towner=%s\tbalance=%s\tsum=%s\ttransactions=%d\t%s\n",
		d.WalletID, d.OwnerID, d.Balance.String(), d.Sum.String(), d.Transactions, state)
}
