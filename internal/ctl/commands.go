package ctl

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type auditCmd struct {
	env    *Env
	dbURL  string
	wallet string
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "compare wallet balances with the sum of their transactions" }
func (*auditCmd) Usage() string {
	return `ledgerctl audit [-database-url <url>] [-wallet <id>]

  Reports every wallet (or just one) with its stored balance and the sum of
  its transactions. Exits non-zero when any wallet drifted.
`
}

func (c *auditCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.dbURL)
	f.StringVar(&c.wallet, "wallet", "", "Audit only this wallet id.")
}

func (c *auditCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, release, err := c.env.auditor(ctx, c.dbURL)
	if err != nil {
		return c.env.fail(err)
	}
	defer release()

	if c.wallet != "" {
		d, err := a.Check(ctx, c.wallet)
		if err != nil {
			return c.env.fail(fmt.Errorf("audit %s: %w", c.wallet, err))
		}
		c.env.printDrift(d)
		if !d.Consistent() {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	drifts, err := a.CheckAll(ctx)
	if err != nil {
		return c.env.fail(err)
	}
	status := subcommands.ExitSuccess
	for _, d := range drifts {
		c.env.printDrift(d)
		if !d.Consistent() {
			status = subcommands.ExitFailure
		}
	}
	return status
}

type repairCmd struct {
	env    *Env
	dbURL  string
	wallet string
}

func (*repairCmd) Name() string     { return "repair" }
func (*repairCmd) Synopsis() string { return "reset a drifted wallet balance to the sum of its transactions" }
func (*repairCmd) Usage() string {
	return `ledgerctl repair -wallet <id> [-database-url <url>]

  Recomputes the balance of one wallet from its transactions.
`
}

func (c *repairCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.dbURL)
	f.StringVar(&c.wallet, "wallet", "", "Wallet id to repair (required).")
}

func (c *repairCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.wallet == "" {
		return c.env.fail(fmt.Errorf("-wallet is required"))
	}
	a, release, err := c.env.auditor(ctx, c.dbURL)
	if err != nil {
		return c.env.fail(err)
	}
	defer release()

	before, err := a.Repair(ctx, c.wallet)
	if err != nil {
		return c.env.fail(fmt.Errorf("repair %s: %w", c.wallet, err))
	}
	if before.Consistent() {
		fmt.Fprintf(c.env.Out, "%s already consistent at %s\n", c.wallet, before.Balance.String())
		return subcommands.ExitSuccess
	}
	fmt.Fprintf(c.env.Out, "%s repaired: %s -> %s\n", c.wallet, before.Balance.String(), before.Sum.String())
	return subcommands.ExitSuccess
}

type sweepCmd struct {
	env   *Env
	dbURL string
}

func (*sweepCmd) Name() string     { return "sweep" }
func (*sweepCmd) Synopsis() string { return "delete transactions whose wallet no longer exists" }
func (*sweepCmd) Usage() string {
	return `ledgerctl sweep [-database-url <url>]

  Removes transactions left behind by an interrupted wallet delete.
`
}

func (c *sweepCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.dbURL)
}

func (c *sweepCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, release, err := c.env.auditor(ctx, c.dbURL)
	if err != nil {
		return c.env.fail(err)
	}
	defer release()

	n, err := a.Sweep(ctx)
	if err != nil {
		return c.env.fail(err)
	}
	fmt.Fprintf(c.env.Out, "swept %d orphaned transactions\n", n)
	return subcommands.ExitSuccess
}

type migrateCmd struct {
	env   *Env
	dbURL string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `ledgerctl migrate [-database-url <url>]
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	dbFlag(f, &c.dbURL)
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.dbURL == "" {
		return c.env.fail(fmt.Errorf("a database URL is required"))
	}
	if err := c.env.Migrate(ctx, c.dbURL); err != nil {
		return c.env.fail(fmt.Errorf("migrate: %w", err))
	}
	fmt.Fprintln(c.env.Out, "schema applied")
	return subcommands.ExitSuccess
}
