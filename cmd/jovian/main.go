// Package main provides the entry point for the jovian CLI.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/jovian-ai/jovian-cli/cmd/jovian/commands"
	"github.com/jovian-ai/jovian-cli/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	outcome := commands.NewRouter(app.New(commands.Version), os.Stdout, os.Stderr).Dispatch(ctx, os.Args[1:])
	stop()
	os.Exit(outcome.Code)
}
