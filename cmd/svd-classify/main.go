// Package main provides the svd-classify CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/svd-classify/internal/api"
	"github.com/svd-classify/internal/cli"
)

var (
	// Version is set by build flags
	Version = "dev"
)

func main() {
	cli.Version = Version
	api.Version = Version

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
