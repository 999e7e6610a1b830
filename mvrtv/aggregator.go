// Package mvrtv counts "rock the vote" requests toward starting a map vote.
package mvrtv

// Aggregator is the set of players who have requested a vote.
//
// Aggregator is not safe for concurrent use.
type Aggregator struct {
	requesters map[int]struct{}

	// Whether the count matched the requirement
	// at the most recent Request call.
	reached bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		requesters: make(map[int]struct{}),
	}
}

// Required returns the number of requests needed to start a vote
// with the given number of connected players: a strict majority.
func Required(connectedPlayers int) int {
	return connectedPlayers/2 + 1
}

// Request records playerID's request and reports the resulting count
// along with the requirement for connectedPlayers.
// Repeated requests from the same player are counted once.
func (a *Aggregator) Request(playerID, connectedPlayers int) (count, required int) {
	a.requesters[playerID] = struct{}{}

	count = len(a.requesters)
	required = Required(connectedPlayers)

	a.reached = count == required
	return count, required
}

// ShouldTrigger reports whether the count matched the requirement
// at the most recent [*Aggregator.Request].
// The caller resets the aggregator when it starts a vote.
func (a *Aggregator) ShouldTrigger() bool {
	return a.reached
}

// Remove forgets playerID's request, if any.
func (a *Aggregator) Remove(playerID int) {
	delete(a.requesters, playerID)
	a.reached = false
}

// Reset forgets every request.
func (a *Aggregator) Reset() {
	clear(a.requesters)
	a.reached = false
}

func (a *Aggregator) Len() int {
	return len(a.requesters)
}
