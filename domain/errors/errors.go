// Package errors provides domain-specific error types for the contract runtime.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/votepoll/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// ErrInstanceBroken is returned by every call on an instance after a guest call trapped.
// The guest's memory is indeterminate at that point and the instance must be reloaded.
var ErrInstanceBroken = stdErrors.New("contract instance is broken by an earlier trap")

// ErrInstanceClosed is returned by calls on an instance after Close.
var ErrInstanceClosed = stdErrors.New("contract instance is closed")

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
// This function recognizes custom error types and categorizes them appropriately.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    entities.ErrorTypeInternal,
	}
}

// DecodeError reports bytes that do not match the expected record shape.
type DecodeError struct {
	Err    error
	Record string // Record type being decoded, e.g. "VotePollState"
}

func (e *DecodeError) Error() string {
	if e.Record != "" {
		return fmt.Sprintf("decode %s failed: %v", e.Record, e.Err)
	}
	return fmt.Sprintf("decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DecodeError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeDecode, Code: e.Record}
}

// WireFormatError represents a wire format encoding error.
type WireFormatError struct {
	Err       error
	Operation string
	Record    string
}

func (e *WireFormatError) Error() string {
	return fmt.Sprintf("wire format %s failed for %s: %v", e.Operation, e.Record, e.Err)
}

func (e *WireFormatError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *WireFormatError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeInternal, Code: "wire_format"}
}

// AllocationError represents a guest allocator that could not satisfy a request.
type AllocationError struct {
	Requested int // Requested allocation size
	Current   int // Current total allocated, when known
	Limit     int // Maximum allowed, when known
}

func (e *AllocationError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("memory allocation failed: requested %d bytes, current %d bytes, limit %d bytes",
			e.Requested, e.Current, e.Limit)
	}
	return fmt.Sprintf("memory allocation failed: requested %d bytes", e.Requested)
}

// ToErrorDetail implements DetailedError.
func (e *AllocationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: entities.ErrorTypeAllocation, Code: "memory_limit"}
}

// LoadError reports bytes that are not a valid module for the runtime.
type LoadError struct {
	Err  error
	Path string // Optional: where the module was read from
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load module %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("load module: %v", e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "load", Code: "invalid_module"}
}

// InstantiationError reports a module that compiled but could not be instantiated.
type InstantiationError struct {
	Err error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate module: %v", e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *InstantiationError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "instantiation"}
}

// MissingExportError reports a required export that is absent or has the wrong signature.
type MissingExportError struct {
	Name   string
	Reason string // Optional: signature mismatch description
}

func (e *MissingExportError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("export %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("export %q not found", e.Name)
}

// ToErrorDetail implements DetailedError.
func (e *MissingExportError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "module_shape", Code: "missing_export"}
}

// MissingMemoryError reports a module without exported linear memory, or an
// access outside of it.
type MissingMemoryError struct {
	Offset uint32
	Length uint32
	Access string // "read", "write" or empty when the memory itself is missing
}

func (e *MissingMemoryError) Error() string {
	if e.Access != "" {
		return fmt.Sprintf("guest memory %s out of range: offset %d, length %d", e.Access, e.Offset, e.Length)
	}
	return "module does not export linear memory"
}

// ToErrorDetail implements DetailedError.
func (e *MissingMemoryError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "module_shape", Code: "missing_memory"}
}

// TrapError reports a guest call that aborted. The instance is unusable afterwards.
type TrapError struct {
	Err    error
	Export string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("guest call %s trapped: %v", e.Export, e.Err)
}

func (e *TrapError) Unwrap() []error {
	return []error{e.Err, ErrInstanceBroken}
}

// ToErrorDetail implements DetailedError.
func (e *TrapError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "trap", Code: e.Export}
}

// GuestError is a failure the guest reported as a value rather than a trap.
// Unwrap yields the typed error matching the detail's type, so
// errors.As(err, &decodeErr) works across the boundary.
type GuestError struct {
	Detail *entities.ErrorDetail
	Export string
}

func (e *GuestError) Error() string {
	return fmt.Sprintf("guest %s returned error: %v", e.Export, e.Detail)
}

func (e *GuestError) Unwrap() error {
	if e.Detail == nil {
		return nil
	}
	switch e.Detail.Type {
	case entities.ErrorTypeDecode:
		return &DecodeError{Record: e.Detail.Code, Err: stdErrors.New(e.Detail.Message)}
	case entities.ErrorTypeAllocation:
		return &AllocationError{}
	default:
		return e.Detail
	}
}

// ToErrorDetail implements DetailedError.
func (e *GuestError) ToErrorDetail() *entities.ErrorDetail {
	return e.Detail
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// SchemaError represents a schema generation or validation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}
