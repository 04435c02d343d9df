// Package engine implements the vote and poll state transitions.
//
// Every function here is pure: inputs are never mutated and the returned state
// owns its own tallies map. The guest exports call into this package after
// decoding; host-side tooling uses it to predict or replay guest results.
package engine

import (
	"math"
	"sort"

	"github.com/reglet-dev/votepoll/domain/entities"
)

// IncrementVote returns the counter after one vote. The addition wraps on
// int32 overflow, matching the guest's fixed-width arithmetic.
func IncrementVote(state entities.VoteState) int32 {
	return state.Value + 1
}

// Apply performs the transition selected by state.Event and returns the new state.
//
// Poll(name) registers name with a zero count unless it is already present.
// Vote(name) adds one to an existing entry and silently does nothing for an
// unknown option. Counts saturate at math.MaxInt32 so a tally never goes
// negative. Value and Event are carried through unchanged.
func Apply(state entities.VotePollState) entities.VotePollState {
	next := state.Clone()

	name := state.Event.Name
	switch state.Event.Kind {
	case entities.EventPoll:
		if _, ok := next.Tallies[name]; !ok {
			next.Tallies[name] = 0
		}
	case entities.EventVote:
		if count, ok := next.Tallies[name]; ok && count < math.MaxInt32 {
			next.Tallies[name] = count + 1
		}
	}

	return next
}

// Replay applies events in order, starting from state's tallies and value.
// The returned state carries the last event applied, or state.Event when
// events is empty.
func Replay(state entities.VotePollState, events ...entities.Event) entities.VotePollState {
	current := state.Clone()
	for _, event := range events {
		current.Event = event
		current = Apply(current)
	}
	return current
}

// Winner returns the option with the highest count. Ties go to the
// lexically smallest name. ok is false when tallies is empty.
func Winner(tallies map[string]int32) (name string, count int32, ok bool) {
	names := make([]string, 0, len(tallies))
	for n := range tallies {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if !ok || tallies[n] > count {
			name, count, ok = n, tallies[n], true
		}
	}
	return name, count, ok
}
