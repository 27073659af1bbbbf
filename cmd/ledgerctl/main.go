package main

import (
	"context"
	"os"
	"os/signal"
	"path"

	"github.com/joho/godotenv"

	"github.com/Dan9191/budget-service/internal/cli"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	status := cli.Run(ctx, path.Base(os.Args[0]), os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(int(status))
}
