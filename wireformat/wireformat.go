// Package wireformat defines the binary wire format shared by the host and the
// guest. Records are CBOR arrays with a fixed field order, encoded with the Core
// Deterministic profile so the same value always produces the same bytes.
// Both sides must link this package at the same version: there is no negotiation.
package wireformat

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/reglet-dev/votepoll/domain/entities"
	"github.com/reglet-dev/votepoll/domain/errors"
)

// Record is the set of values that may cross the boundary.
type Record interface {
	entities.VoteState | entities.VotePollState | entities.Envelope
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CoreDetEncOptions()
	// An absent tallies map and an empty one must share a single encoding.
	encOpts.NilContainers = cbor.NilContainerAsEmpty

	var err error
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: invalid encode options: %v", err))
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		TagsMd:      cbor.TagsForbidden,
		UTF8:        cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wireformat: invalid decode options: %v", err))
	}
}

// Encode serializes a record.
func Encode[T Record](v T) ([]byte, error) {
	name := recordName(v)
	if err := check(v); err != nil {
		return nil, &errors.WireFormatError{Operation: "encode", Record: name, Err: err}
	}
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, &errors.WireFormatError{Operation: "encode", Record: name, Err: err}
	}
	return data, nil
}

// Decode deserializes a record. Trailing bytes, wrong arity, duplicate keys,
// out-of-range integers and unknown event tags are all rejected with a
// *errors.DecodeError.
func Decode[T Record](data []byte) (T, error) {
	var v T
	name := recordName(v)
	if len(data) == 0 {
		return v, &errors.DecodeError{Record: name, Err: fmt.Errorf("empty buffer")}
	}
	if err := decMode.Unmarshal(data, &v); err != nil {
		return v, &errors.DecodeError{Record: name, Err: err}
	}
	if err := check(v); err != nil {
		return v, &errors.DecodeError{Record: name, Err: err}
	}
	return v, nil
}

// Marshal encodes any supported record given as an interface value.
func Marshal(v any) ([]byte, error) {
	switch r := v.(type) {
	case entities.VoteState:
		return Encode(r)
	case entities.VotePollState:
		return Encode(r)
	case entities.Envelope:
		return Encode(r)
	case *entities.VoteState:
		return Encode(*r)
	case *entities.VotePollState:
		return Encode(*r)
	case *entities.Envelope:
		return Encode(*r)
	default:
		return nil, &errors.WireFormatError{Operation: "encode", Record: fmt.Sprintf("%T", v), Err: fmt.Errorf("unsupported record type")}
	}
}

func check[T Record](v T) error {
	switch r := any(v).(type) {
	case entities.VotePollState:
		if !r.Event.Kind.Valid() {
			return fmt.Errorf("unknown event tag %d", uint8(r.Event.Kind))
		}
	case entities.Envelope:
		if r.Error != nil && len(r.Payload) > 0 {
			return fmt.Errorf("envelope carries both error and payload")
		}
	}
	return nil
}

func recordName[T Record](v T) string {
	switch any(v).(type) {
	case entities.VoteState:
		return "VoteState"
	case entities.VotePollState:
		return "VotePollState"
	default:
		return "Envelope"
	}
}
