package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/Dan9191/budget-service/internal/auth"
	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/service"
	"github.com/Dan9191/budget-service/internal/storage/postgres"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string           { return "migrate" }
func (*migrateCmd) Synopsis() string       { return "apply the PostgreSQL schema migrations" }
func (*migrateCmd) Usage() string          { return "ledgerctl migrate\n" }
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	cfg, err := config.NewConfig()
	if err != nil {
		return e.fail("failed to load config: %v", err)
	}
	if cfg.StoreDriver != config.DriverPostgres {
		fmt.Fprintf(e.out, "store driver %q has no schema, nothing to migrate\n", cfg.StoreDriver)
		return subcommands.ExitSuccess
	}

	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		return e.fail("failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return e.fail("failed to ping database: %v", err)
	}
	if err := postgres.Migrate(db); err != nil {
		return e.fail("%v", err)
	}
	fmt.Fprintln(e.out, "migrations applied")
	return subcommands.ExitSuccess
}

type tokenCmd struct {
	user string
}

func (*tokenCmd) Name() string     { return "token" }
func (*tokenCmd) Synopsis() string { return "issue an auth token signed with JWT_SECRET" }
func (*tokenCmd) Usage() string {
	return `ledgerctl token [-user <name>]

  Prints a token usable as the authToken cookie or a Bearer header.
`
}

func (c *tokenCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.user, "user", "", "Username to embed (defaults to AUTH_USERNAME).")
}

func (c *tokenCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	cfg, err := config.NewConfig()
	if err != nil {
		return e.fail("failed to load config: %v", err)
	}
	user := c.user
	if user == "" {
		user = cfg.AuthUsername
	}
	token, _, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL).Issue(user)
	if err != nil {
		return e.fail("%v", err)
	}
	fmt.Fprintln(e.out, token)
	return subcommands.ExitSuccess
}

type hashPasswordCmd struct {
	password string
}

func (*hashPasswordCmd) Name() string     { return "hash-password" }
func (*hashPasswordCmd) Synopsis() string { return "print a bcrypt hash for AUTH_PASSWORD_HASH" }
func (*hashPasswordCmd) Usage() string {
	return "ledgerctl hash-password -password <password>\n"
}

func (c *hashPasswordCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.password, "password", "", "Password to hash.")
}

func (c *hashPasswordCmd) Execute(_ context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	if c.password == "" {
		return e.fail("-password is required")
	}
	hash, err := service.HashPassword(c.password)
	if err != nil {
		return e.fail("%v", err)
	}
	fmt.Fprintln(e.out, hash)
	return subcommands.ExitSuccess
}
