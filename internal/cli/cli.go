// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/budget-service/internal/bootstrap"
	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/service"
)

// Commands lists every ledgerctl subcommand.
var Commands = []subcommands.Command{
	&snapshotCmd{},
	&recordCmd{},
	&deleteCmd{},
	&summaryCmd{},
	&reconcileCmd{},
	&migrateCmd{},
	&tokenCmd{},
	&hashPasswordCmd{},
}

// env is handed to every command through Execute's variadic arguments.
type env struct {
	out    io.Writer
	errOut io.Writer
}

func envFrom(args []interface{}) *env {
	for _, a := range args {
		if e, ok := a.(*env); ok {
			return e
		}
	}
	panic("cli: command executed without env")
}

func (e *env) fail(format string, a ...any) subcommands.ExitStatus {
	fmt.Fprintf(e.errOut, format+"\n", a...)
	return subcommands.ExitFailure
}

func (e *env) printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return e.fail("failed to encode output: %v", err)
	}
	return subcommands.ExitSuccess
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) subcommands.ExitStatus {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	commander := subcommands.NewCommander(fs, name)
	commander.Output = stdout
	commander.Error = stderr
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	for _, c := range Commands {
		commander.Register(c, "")
	}

	if err := fs.Parse(args); err != nil {
		return subcommands.ExitUsageError
	}
	return commander.Execute(ctx, &env{out: stdout, errOut: stderr})
}

// cliLogger keeps diagnostics on stderr so command output stays parseable.
func cliLogger(cfg *config.Config, stderr io.Writer) *logrus.Logger {
	log := bootstrap.NewLogger(cfg.LogLevel)
	log.SetOutput(stderr)
	if log.GetLevel() == logrus.InfoLevel {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

// withLedger opens the configured store and runs fn against a ledger on it.
func withLedger(ctx context.Context, e *env, fn func(*service.LedgerService, *config.Config) subcommands.ExitStatus) subcommands.ExitStatus {
	cfg, err := config.NewConfig()
	if err != nil {
		return e.fail("failed to load config: %v", err)
	}
	log := cliLogger(cfg, e.errOut)

	store, closer, err := bootstrap.OpenStore(ctx, cfg, log, bootstrap.StoreOptions{})
	if err != nil {
		return e.fail("failed to open store: %v", err)
	}
	defer closer.Close()

	publisher, publisherCloser := bootstrap.NewPublisher(cfg, log)
	defer publisherCloser.Close()

	ledger := service.NewLedgerService(store, log, bootstrap.LedgerConfig(cfg), service.WithPublisher(publisher))
	return fn(ledger, cfg)
}
