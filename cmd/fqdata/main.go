package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fqdata/fqdata/internal/cli/fqdatactl"
	"github.com/fqdata/fqdata/internal/config"
)

func main() {
	cfg, err := config.LoadFromEnv("fqdata")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := fqdatactl.Run(ctx, os.Args[1:], fqdatactl.Options{
		Config: cfg,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	stop()
	os.Exit(code)
}
