package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/freeeve/chessarchive/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Main(ctx)
	stop()
	os.Exit(code)
}
