// Package main provides the outboxd entry point.
// outboxd moves rows from PostgreSQL outbox tables to Kafka topics using
// LISTEN/NOTIFY with full-scan fallback.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/otherjamesbrown/outboxd/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
