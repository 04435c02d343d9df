// Package host drives votepoll contract modules from the host side.
//
// It wraps the wazero runtime, validates that a module exposes the contract's
// export surface, and implements the push/invoke/pull protocol: allocate guest
// memory, write an encoded record, call an export with (ptr, len), read the
// framed result back and release every buffer the exchange created.
//
// An Instance serializes its own calls. Separate instances may be driven from
// separate goroutines.
package host
