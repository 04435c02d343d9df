// Package entities provides the core domain types shared by the host and the guest.
// The same types serve as domain values and as the wire records that cross the
// WASM boundary, so both sides must link this package at the same version.
package entities
