// Command designctl runs the design pipeline from the command line.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"archpipe/internal/cli"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, Version); err != nil {
		stop()
		os.Exit(1)
	}
}
