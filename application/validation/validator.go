// Package validation checks JSON state documents before they are sent to a guest.
//
// Documents pass two gates: the JSON Schema generated from entities.VotePollState
// (shape, enum and integer checks) and the struct tags on the decoded value
// (non-negative counts). Only tallies is required: a missing event decodes as
// Poll("") and a missing value as 0.
package validation

import (
	"bytes"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/votepoll/application/schema"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validate is a package-level singleton for better performance.
var validate = validator.New()

// StateValidator validates VotePollState documents against the state schema.
type StateValidator struct {
	schema *jsonschema.Schema
}

// NewStateValidator compiles the state schema.
func NewStateValidator() (*StateValidator, error) {
	raw, err := schema.StateSchema()
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schema.StateSchemaID, bytes.NewReader(raw)); err != nil {
		return nil, &errors.SchemaError{Type: "VotePollState", Err: fmt.Errorf("failed to add schema resource: %w", err)}
	}
	sch, err := compiler.Compile(schema.StateSchemaID)
	if err != nil {
		return nil, &errors.SchemaError{Type: "VotePollState", Err: fmt.Errorf("invalid schema: %w", err)}
	}
	return &StateValidator{schema: sch}, nil
}

// ValidateJSON checks a JSON document against the state schema.
func (v *StateValidator) ValidateJSON(data []byte) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		result.Add("$", fmt.Sprintf("invalid JSON: %v", err))
		return result, nil
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if !stdErrors.As(err, &ve) {
			return nil, &errors.SchemaError{Type: "VotePollState", Err: err}
		}
		for _, leaf := range leafErrors(ve) {
			field := leaf.InstanceLocation
			if field == "" {
				field = "$"
			}
			result.Add(field, leaf.Message)
		}
	}
	return result, nil
}

// Decode validates data and decodes it into a VotePollState. A document
// failing either gate yields a *errors.SchemaError listing every failure.
// Callers that apply their own event overwrite the decoded one.
func (v *StateValidator) Decode(data []byte) (entities.VotePollState, error) {
	result, err := v.ValidateJSON(data)
	if err != nil {
		return entities.VotePollState{}, err
	}
	if !result.Valid {
		return entities.VotePollState{}, &errors.SchemaError{Type: "VotePollState", Err: fmt.Errorf("document rejected:\n%s", result.Summary())}
	}

	var state entities.VotePollState
	if err := json.Unmarshal(data, &state); err != nil {
		return entities.VotePollState{}, &errors.SchemaError{Type: "VotePollState", Err: err}
	}
	if state.Tallies == nil {
		state.Tallies = map[string]int32{}
	}

	if result := ValidateState(state); !result.Valid {
		return entities.VotePollState{}, &errors.SchemaError{Type: "VotePollState", Err: fmt.Errorf("state rejected:\n%s", result.Summary())}
	}
	return state, nil
}

// ValidateState checks the struct tags of a decoded state.
func ValidateState(state entities.VotePollState) *entities.ValidationResult {
	result := &entities.ValidationResult{Valid: true}
	if !state.Event.Kind.Valid() {
		result.Add("Event.Kind", fmt.Sprintf("unknown event kind %d", uint8(state.Event.Kind)))
	}

	err := validate.Struct(state)
	if err == nil {
		return result
	}
	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		result.Add("$", err.Error())
		return result
	}
	for _, fe := range fieldErrs {
		result.Add(strings.TrimPrefix(fe.Namespace(), "VotePollState."), fmt.Sprintf("failed %q check", fe.Tag()))
	}
	return result
}

// leafErrors flattens a validation error tree to its most specific causes,
// ordered by location.
func leafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InstanceLocation < out[j].InstanceLocation
	})
	return out
}
