//go:build debug

package mvsession

import "fmt"

// checkInvariants panics if the tally disagrees with the ballots.
func (s *Session) checkInvariants() {
	if s.state != StateActive {
		if len(s.ballots) != 0 || s.tally != nil {
			panic(fmt.Errorf(
				"BUG: %s session holds %d ballots and tally %v",
				s.state, len(s.ballots), s.tally,
			))
		}
		return
	}

	if len(s.tally) != len(s.slate) {
		panic(fmt.Errorf(
			"BUG: tally length %d differs from slate length %d", len(s.tally), len(s.slate),
		))
	}

	want := make([]int, len(s.tally))
	for p, opt := range s.ballots {
		if opt < 0 || opt >= len(want) {
			panic(fmt.Errorf("BUG: player %d holds out of range option %d", p, opt))
		}
		want[opt]++
	}
	for i := range want {
		if want[i] != s.tally[i] {
			panic(fmt.Errorf(
				"BUG: tally %v disagrees with ballots (expected %v)", s.tally, want,
			))
		}
	}
}
