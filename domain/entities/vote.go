package entities

import (
	"fmt"
	"strings"
)

// EventKind selects which transition a VotePollState carries.
type EventKind uint8

const (
	// EventPoll registers a poll option if it is not already present.
	EventPoll EventKind = 0

	// EventVote increments the count of an existing poll option.
	EventVote EventKind = 1
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPoll:
		return "poll"
	case EventVote:
		return "vote"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the two defined variants.
func (k EventKind) Valid() bool {
	return k == EventPoll || k == EventVote
}

// MarshalText implements encoding.TextMarshaler for the JSON form.
func (k EventKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid event kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for the JSON form.
func (k *EventKind) UnmarshalText(text []byte) error {
	kind, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseEventKind parses "poll" or "vote" (case-insensitive).
func ParseEventKind(s string) (EventKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poll":
		return EventPoll, nil
	case "vote":
		return EventVote, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q (want poll or vote)", s)
	}
}

// Event is the tagged union applied by the state engine.
// Both variants carry exactly one text field: the poll option name.
type Event struct {
	_ struct{} `cbor:",toarray"`

	// Kind is the variant tag.
	Kind EventKind `json:"kind"`

	// Name is the poll option the event refers to. Lookup is by exact match,
	// and any text, including the empty string, is a valid name.
	Name string `json:"name"`
}

// NewPoll returns a Poll(name) event.
func NewPoll(name string) Event {
	return Event{Kind: EventPoll, Name: name}
}

// NewVote returns a Vote(name) event.
func NewVote(name string) Event {
	return Event{Kind: EventVote, Name: name}
}

// ParseEvent parses the "kind:name" form used on the command line,
// e.g. "poll:kingsgg" or "vote:kingsgg".
func ParseEvent(s string) (Event, error) {
	kindStr, name, ok := strings.Cut(s, ":")
	if !ok || name == "" {
		return Event{}, fmt.Errorf("invalid event %q (want poll:NAME or vote:NAME)", s)
	}
	kind, err := ParseEventKind(kindStr)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: kind, Name: name}, nil
}

// String renders the event in the same "kind:name" form ParseEvent accepts.
func (e Event) String() string {
	return e.Kind.String() + ":" + e.Name
}

// VoteState is a standalone vote counter unconnected to any poll.
type VoteState struct {
	_ struct{} `cbor:",toarray"`

	Value int32 `json:"value"`
}

// VotePollState is the full poll aggregate passed across the boundary.
// Field order is part of the wire format: tallies, event, value.
type VotePollState struct {
	_ struct{} `cbor:",toarray"`

	// Tallies maps poll option name to its vote count.
	Tallies map[string]int32 `json:"tallies" validate:"dive,gte=0"`

	// Event is the transition to apply.
	Event Event `json:"event"`

	// Value is carried through unchanged by every transition.
	Value int32 `json:"value"`
}

// Clone returns a deep copy of s. The tallies map is never shared.
func (s VotePollState) Clone() VotePollState {
	out := VotePollState{
		Tallies: make(map[string]int32, len(s.Tallies)),
		Event:   s.Event,
		Value:   s.Value,
	}
	for name, count := range s.Tallies {
		out.Tallies[name] = count
	}
	return out
}
