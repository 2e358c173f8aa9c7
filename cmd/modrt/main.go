// Command modrt runs and inspects bundle sets.
//
// Usage:
//
//	modrt run bundles.yaml
//	modrt resolve bundles.yaml
//	modrt graph bundles.yaml --format dot
//	modrt version
//
// Configuration is read from flags, MODRT_* environment variables and an
// optional YAML config file, in that order of precedence.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
