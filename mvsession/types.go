package mvsession

import (
	"fmt"

	"github.com/kzmapvote/kzmapvote/mvmap"
)

// State is the lifecycle state of a [Session].
type State uint8

const (
	StateIdle State = iota
	StateActive
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateResolving:
		return "resolving"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// TickResult is the result of [*Session.Tick].
type TickResult uint8

const (
	TickContinue TickResult = iota
	TickExpired
)

// OutcomeKind distinguishes the possible results of [*Session.Resolve].
type OutcomeKind uint8

const (
	// Nobody voted.
	OutcomeNoVotes OutcomeKind = iota

	// The "don't change" option won.
	OutcomeNoChange

	// A map won.
	OutcomeMapSelected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoVotes:
		return "no_votes"
	case OutcomeNoChange:
		return "no_change"
	case OutcomeMapSelected:
		return "map_selected"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", uint8(k))
	}
}

// Outcome is the result of a resolved vote.
// Entry and Votes are zero for [OutcomeNoVotes].
type Outcome struct {
	Kind  OutcomeKind
	Entry mvmap.Entry
	Votes int
}
