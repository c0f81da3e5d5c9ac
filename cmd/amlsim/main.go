package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"amlsim/internal/cli"
	"amlsim/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, logging.NewLogger()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
