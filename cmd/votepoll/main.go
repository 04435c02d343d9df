//go:build !wasip1

// Command votepoll drives a votepoll contract module from the host.
//
// Usage:
//
//	votepoll --module votepoll.wasm increment --value 22
//	votepoll --module votepoll.wasm apply --state state.json --event vote:kingsgg
//	votepoll --module votepoll.wasm demo
//	votepoll schema
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
