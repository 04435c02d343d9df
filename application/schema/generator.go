// Package schema provides JSON schema generation for the host's JSON inputs.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
)

// StateSchemaID identifies the VotePollState schema when it is compiled.
const StateSchemaID = "https://votepoll.local/schemas/vote-poll-state.json"

var eventKindType = reflect.TypeOf(entities.EventKind(0))

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v interface{}) ([]byte, error) {
	reflector := newReflector()
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, &errors.SchemaError{Type: fmt.Sprintf("%T", v), Err: fmt.Errorf("failed to marshal schema: %w", err)}
	}

	return jsonBytes, nil
}

// StateSchema returns the schema of the JSON form of entities.VotePollState.
func StateSchema() ([]byte, error) {
	reflector := newReflector()
	schema := reflector.Reflect(&entities.VotePollState{})
	schema.ID = jsonschema.ID(StateSchemaID)
	schema.Title = "VotePollState"
	schema.Description = "Poll tallies, the event to apply and a pass-through value."
	// Callers usually replace the event, so a state document needs only its tallies.
	schema.Required = []string{"tallies"}

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, &errors.SchemaError{Type: "VotePollState", Err: fmt.Errorf("failed to marshal schema: %w", err)}
	}
	return jsonBytes, nil
}

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
		Mapper:         mapType,
	}
}

// mapType renders event kinds by name, matching their JSON text form.
func mapType(t reflect.Type) *jsonschema.Schema {
	if t == eventKindType {
		return &jsonschema.Schema{
			Type: "string",
			Enum: []any{entities.EventPoll.String(), entities.EventVote.String()},
		}
	}
	return nil
}
