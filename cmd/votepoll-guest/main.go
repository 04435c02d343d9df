//go:build wasip1

// Command votepoll-guest is the contract module loaded by the votepoll host.
//
// Build it as a WASI reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o votepoll.wasm ./cmd/votepoll-guest
package main

import (
	_ "github.com/reglet-dev/votepoll/guest" // registers the contract exports
)

func main() {}
