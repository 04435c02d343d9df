package host

import (
	"fmt"

	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Export names of the contract ABI.
const (
	ExportMemory         = "memory"
	ExportAllocate       = "allocate"
	ExportDeallocate     = "deallocate"
	ExportReset          = "reset"
	ExportGetLastLength  = "get_last_length"
	ExportStats          = "stats"
	ExportInit           = "init"
	ExportIncrementVote  = "increment_vote"
	ExportApplyPollEvent = "apply_poll_event"

	exportInitialize = "_initialize"
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64

	// invokeSignature is the (ptr, len) -> packed i64 shape of value-taking exports.
	invokeSignature = signature{[]api.ValueType{i32, i32}, []api.ValueType{i64}}
)

// requiredExports must be present with exactly these signatures.
// Order fixes which export is reported first when several are missing.
var requiredExports = []struct {
	name string
	sig  signature
}{
	{ExportAllocate, signature{[]api.ValueType{i32}, []api.ValueType{i32}}},
	{ExportDeallocate, signature{[]api.ValueType{i32, i32}, nil}},
	{ExportGetLastLength, signature{nil, []api.ValueType{i32}}},
	{ExportInit, signature{nil, []api.ValueType{i32}}},
	{ExportIncrementVote, invokeSignature},
	{ExportApplyPollEvent, invokeSignature},
}

// optionalExports are checked only when present.
var optionalExports = map[string]signature{
	ExportReset: {nil, nil},
	ExportStats: {nil, []api.ValueType{i64}},
}

// validateContract returns an error if module cannot serve as a contract:
// it must export linear memory and every required function.
func validateContract(module wazero.CompiledModule) error {
	if _, ok := module.ExportedMemories()[ExportMemory]; !ok {
		return &errors.MissingMemoryError{}
	}
	for _, export := range requiredExports {
		if err := validateModuleHasFunction(module, export.name, export.sig); err != nil {
			return err
		}
	}
	for name, sig := range optionalExports {
		if _, ok := module.ExportedFunctions()[name]; !ok {
			continue
		}
		if err := validateModuleHasFunction(module, name, sig); err != nil {
			return err
		}
	}
	return nil
}

// validateModuleHasFunction returns an error if module does not contain an
// exported function with the given name, parameters and results.
func validateModuleHasFunction(module wazero.CompiledModule, name string, sig signature) error {
	function, ok := module.ExportedFunctions()[name]
	if !ok {
		return &errors.MissingExportError{Name: name}
	}
	return checkSignature(name, function, sig)
}

// checkSignature returns an error unless def has exactly sig's parameter and
// result types.
func checkSignature(name string, def api.FunctionDefinition, sig signature) error {
	params := def.ParamTypes()
	if len(params) != len(sig.params) {
		return &errors.MissingExportError{Name: name, Reason: fmt.Sprintf("should take %d parameters", len(sig.params))}
	}
	for i, expected := range sig.params {
		if params[i] != expected {
			return &errors.MissingExportError{
				Name:   name,
				Reason: fmt.Sprintf("expected param %d to have type %s", i, api.ValueTypeName(expected)),
			}
		}
	}

	results := def.ResultTypes()
	if len(results) != len(sig.results) {
		return &errors.MissingExportError{Name: name, Reason: fmt.Sprintf("should return %d results", len(sig.results))}
	}
	for i, expected := range sig.results {
		if results[i] != expected {
			return &errors.MissingExportError{
				Name:   name,
				Reason: fmt.Sprintf("expected result %d to have type %s", i, api.ValueTypeName(expected)),
			}
		}
	}
	return nil
}
