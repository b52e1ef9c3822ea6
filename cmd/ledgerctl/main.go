// Command ledgerctl is the CLI entry point, grounded on the teacher's
// components/mdz/cmd/root.go command-tree shape: a thin main that builds
// the root command and executes it under a SIGINT-cancellable context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/LerianStudio/ledgercore/cmd/ledgerctl/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
