package cli

import (
	"context"
	"flag"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/export"
	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/service"
)

type snapshotCmd struct {
	sort     string
	order    string
	markdown bool
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "print the transactions and current balance" }
func (*snapshotCmd) Usage() string {
	return `ledgerctl snapshot [-sort tid|amount|date] [-order asc|desc] [-md]

  Prints the ledger as JSON, or as a rendered markdown statement with -md.
  Sorting only affects the output.
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sort, "sort", models.SortByTID, "Sort key (tid, amount, date).")
	f.StringVar(&c.order, "order", models.OrderAsc, "Sort order (asc, desc).")
	f.BoolVar(&c.markdown, "md", false, "Render a markdown statement in the terminal.")
}

func (c *snapshotCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	return withLedger(ctx, e, func(ledger *service.LedgerService, cfg *config.Config) subcommands.ExitStatus {
		snap, err := ledger.Snapshot(ctx)
		if err != nil {
			return e.fail("%v", err)
		}
		if snap.Transactions, err = models.SortTransactions(snap.Transactions, c.sort, c.order); err != nil {
			return e.fail("%v", err)
		}
		if !c.markdown {
			return e.printJSON(snap)
		}

		out, err := glamour.Render(export.Markdown(snap, export.Options{Currency: cfg.Currency}), "auto")
		if err != nil {
			return e.fail("failed to render statement: %v", err)
		}
		if _, err := e.out.Write([]byte(out)); err != nil {
			return e.fail("%v", err)
		}
		return subcommands.ExitSuccess
	})
}

type recordCmd struct {
	txType      string
	amount      string
	description string
	date        string
}

func (*recordCmd) Name() string     { return "record" }
func (*recordCmd) Synopsis() string { return "record an income or expense" }
func (*recordCmd) Usage() string {
	return `ledgerctl record -type income|expense -amount <amount> [-description <text>] [-date <iso date>]

  -date is only honoured when DATE_SOURCE=client.
`
}

func (c *recordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.txType, "type", "", "Transaction type (income, expense).")
	f.StringVar(&c.amount, "amount", "", "Positive amount, at most 1e15 with up to 8 decimal places.")
	f.StringVar(&c.description, "description", "", "Optional description.")
	f.StringVar(&c.date, "date", "", "Optional ISO-8601 date.")
}

func (c *recordCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	amount, err := decimal.NewFromString(strings.TrimSpace(c.amount))
	if err != nil {
		return e.fail("-amount must be a positive number, got %q", c.amount)
	}
	if err := models.ValidateAmount(amount); err != nil {
		return e.fail("-amount: %v", err)
	}
	return withLedger(ctx, e, func(ledger *service.LedgerService, _ *config.Config) subcommands.ExitStatus {
		tx, balance, err := ledger.Record(ctx, service.RecordInput{
			Type:        c.txType,
			Amount:      amount,
			Description: c.description,
			Date:        c.date,
		})
		if err != nil {
			return e.fail("%v", err)
		}
		return e.printJSON(map[string]any{"transaction": tx, "currentBalance": balance})
	})
}

type deleteCmd struct {
	tid int64
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a transaction and revert its effect on the balance" }
func (*deleteCmd) Usage() string {
	return `ledgerctl delete -tid <id>
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&c.tid, "tid", 0, "Transaction id.")
}

func (c *deleteCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	if c.tid <= 0 {
		return e.fail("-tid must be greater than 0")
	}
	return withLedger(ctx, e, func(ledger *service.LedgerService, _ *config.Config) subcommands.ExitStatus {
		balance, err := ledger.Delete(ctx, c.tid)
		if err != nil {
			return e.fail("%v", err)
		}
		return e.printJSON(map[string]any{"currentBalance": balance})
	})
}

type summaryCmd struct{}

func (*summaryCmd) Name() string           { return "summary" }
func (*summaryCmd) Synopsis() string       { return "print income and expense totals" }
func (*summaryCmd) Usage() string          { return "ledgerctl summary\n" }
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (*summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	return withLedger(ctx, e, func(ledger *service.LedgerService, _ *config.Config) subcommands.ExitStatus {
		stats, err := ledger.Summary(ctx)
		if err != nil {
			return e.fail("%v", err)
		}
		return e.printJSON(stats)
	})
}

type reconcileCmd struct{}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "compare the stored balance with the transactions" }
func (*reconcileCmd) Usage() string {
	return `ledgerctl reconcile

  Exits non-zero when the stored balance has drifted. The balance is never rewritten.
`
}
func (*reconcileCmd) SetFlags(*flag.FlagSet) {}

func (*reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	return withLedger(ctx, e, func(ledger *service.LedgerService, _ *config.Config) subcommands.ExitStatus {
		rec, err := ledger.Reconcile(ctx)
		if err != nil {
			return e.fail("%v", err)
		}
		if status := e.printJSON(rec); status != subcommands.ExitSuccess {
			return status
		}
		if !rec.Consistent {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	})
}
