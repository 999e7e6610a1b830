// Package mvsession contains the state machine for a single map vote.
//
// A [Session] moves Idle -> Active on [*Session.Start],
// and back to Idle through either [*Session.Resolve] or [*Session.Cancel].
// The session does not own the nomination registry or any timers;
// the engine drives it from a single goroutine.
package mvsession

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/mvmap"
)

var (
	ErrAlreadyActive = errors.New("vote already active")
	ErrNotActive     = errors.New("no active vote")
	ErrInvalidOption = errors.New("invalid vote option")
	ErrPoolTooSmall  = errors.New("map pool too small")
)

// PoolTooSmallError is returned from [*Session.Start]
// when the pool cannot fill the random slots of the slate.
type PoolTooSmallError struct {
	Have, Need int
}

func (e PoolTooSmallError) Error() string {
	return fmt.Sprintf("map pool too small: have %d maps, need %d", e.Have, e.Need)
}

func (e PoolTooSmallError) Is(target error) bool {
	return target == ErrPoolTooSmall
}

// Session is a vote session.
// It is not safe for concurrent use.
type Session struct {
	rng *rand.Rand

	state State
	id    uuid.UUID

	slate   []mvmap.Entry
	tally   []int
	ballots map[int]int

	remaining int
}

// New returns an idle Session drawing random slate entries from rng.
func New(rng *rand.Rand) *Session {
	if rng == nil {
		panic(errors.New("BUG: mvsession.New requires a non-nil rand source"))
	}
	return &Session{
		rng:     rng,
		ballots: make(map[int]int),
	}
}

// Start begins a vote among slotCount options lasting duration seconds.
//
// The first options are the nominations, in order.
// The remaining options, except for the last,
// are distinct maps drawn uniformly at random from pool.
// The last option is always [mvmap.NoChange].
func (s *Session) Start(nominations, pool []mvmap.Entry, slotCount, duration int) error {
	if slotCount < 1 {
		panic(fmt.Errorf("BUG: slot count must be positive (got %d)", slotCount))
	}
	if duration < 1 {
		panic(fmt.Errorf("BUG: vote duration must be positive (got %d)", duration))
	}
	if len(nominations) > slotCount-1 {
		panic(fmt.Errorf(
			"BUG: %d nominations do not fit in %d slots", len(nominations), slotCount,
		))
	}

	if s.state != StateIdle {
		return ErrAlreadyActive
	}
	if len(pool) < slotCount {
		return PoolTooSmallError{Have: len(pool), Need: slotCount}
	}

	slate := make([]mvmap.Entry, 0, slotCount)
	slate = append(slate, nominations...)
	slate, err := s.fillRandom(slate, pool, slotCount-1)
	if err != nil {
		return err
	}
	slate = append(slate, mvmap.NoChange)

	s.slate = slate
	s.tally = make([]int, slotCount)
	clear(s.ballots)
	s.remaining = duration
	s.id = newID(s.rng)
	s.state = StateActive

	s.checkInvariants()
	return nil
}

// fillRandom appends random pool entries to slate until it has n entries.
func (s *Session) fillRandom(slate, pool []mvmap.Entry, n int) ([]mvmap.Entry, error) {
	// Rejection sampling is fast while most of the pool is unchosen.
	// Give up on it after a bounded number of misses,
	// which only happens when the pool is mostly duplicates or nominations.
	misses := 0
	maxMisses := 8 * len(pool)
	for len(slate) < n && misses < maxMisses {
		candidate := pool[s.rng.IntN(len(pool))]
		if mvmap.Contains(slate, candidate) {
			misses++
			continue
		}
		slate = append(slate, candidate)
	}

	if len(slate) == n {
		return slate, nil
	}

	var remaining []mvmap.Entry
	for _, e := range pool {
		if !mvmap.Contains(slate, e) && !mvmap.Contains(remaining, e) {
			remaining = append(remaining, e)
		}
	}
	need := n - len(slate)
	if len(remaining) < need {
		return nil, PoolTooSmallError{Have: len(slate) + len(remaining), Need: n}
	}

	s.rng.Shuffle(len(remaining), func(i, j int) {
		remaining[i], remaining[j] = remaining[j], remaining[i]
	})
	return append(slate, remaining[:need]...), nil
}

// newID returns a random UUID drawn from rng,
// so that seeded sessions are reproducible.
func newID(rng *rand.Rand) uuid.UUID {
	var b [16]byte
	for i := 0; i < 16; i += 8 {
		v := rng.Uint64()
		for j := 0; j < 8; j++ {
			b[i+j] = byte(v >> (8 * j))
		}
	}
	id, err := uuid.FromBytes(b[:])
	if err != nil {
		panic(fmt.Errorf("BUG: uuid from 16 bytes: %w", err))
	}
	// Mark as a version 4 (random) UUID.
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id
}

// CastBallot records playerID's vote for option.
// Voting for the same option again has no effect,
// and voting for a different option moves the ballot.
func (s *Session) CastBallot(playerID, option int) error {
	if s.state != StateActive {
		return ErrNotActive
	}
	if option < 0 || option >= len(s.slate) {
		return ErrInvalidOption
	}

	prev, had := s.ballots[playerID]
	if had && prev == option {
		return nil
	}
	if had {
		s.tally[prev]--
	}
	s.ballots[playerID] = option
	s.tally[option]++

	s.checkInvariants()
	return nil
}

// RemoveBallot withdraws playerID's ballot, if any.
func (s *Session) RemoveBallot(playerID int) {
	prev, had := s.ballots[playerID]
	if !had {
		return
	}
	delete(s.ballots, playerID)
	s.tally[prev]--

	s.checkInvariants()
}

// Tick advances the countdown by one second.
// Tick must only be called while the session is active.
func (s *Session) Tick() TickResult {
	if s.state != StateActive {
		panic(fmt.Errorf("BUG: Tick called in state %s", s.state))
	}

	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		return TickExpired
	}
	return TickContinue
}

// Resolve ends the active vote and returns its outcome.
// The option with the most votes wins, with ties going to the lowest index.
// Resolve must only be called while the session is active.
func (s *Session) Resolve() Outcome {
	if s.state != StateActive {
		panic(fmt.Errorf("BUG: Resolve called in state %s", s.state))
	}
	s.state = StateResolving

	winner, votes := 0, s.tally[0]
	for i, n := range s.tally {
		if n > votes {
			winner, votes = i, n
		}
	}

	var o Outcome
	switch {
	case votes == 0:
		o = Outcome{Kind: OutcomeNoVotes}
	case winner == len(s.slate)-1:
		o = Outcome{Kind: OutcomeNoChange, Entry: s.slate[winner], Votes: votes}
	default:
		o = Outcome{Kind: OutcomeMapSelected, Entry: s.slate[winner], Votes: votes}
	}

	s.reset()
	return o
}

// Cancel abandons an active vote without an outcome.
// It has no effect when no vote is active.
func (s *Session) Cancel() {
	if s.state != StateActive {
		return
	}
	s.reset()
}

func (s *Session) reset() {
	s.slate = nil
	s.tally = nil
	clear(s.ballots)
	s.remaining = 0
	s.state = StateIdle

	s.checkInvariants()
}

// Slate returns a copy of the current options, or nil when idle.
func (s *Session) Slate() []mvmap.Entry {
	if s.slate == nil {
		return nil
	}
	return append([]mvmap.Entry(nil), s.slate...)
}

// Tally returns a copy of the per-option vote counts, or nil when idle.
func (s *Session) Tally() []int {
	if s.tally == nil {
		return nil
	}
	return append([]int(nil), s.tally...)
}

// Ballot returns the option playerID voted for.
func (s *Session) Ballot(playerID int) (option int, ok bool) {
	option, ok = s.ballots[playerID]
	return option, ok
}

func (s *Session) BallotCount() int {
	return len(s.ballots)
}

// Remaining is the number of whole seconds left in the vote.
func (s *Session) Remaining() int {
	return s.remaining
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Active() bool {
	return s.state == StateActive
}

// ID identifies the most recently started vote.
// It is the zero UUID before the first Start.
func (s *Session) ID() uuid.UUID {
	return s.id
}
