// Package mvmap contains the map value type shared by every other package,
// along with the tier table and workshop ID syntax.
package mvmap

import (
	"fmt"
	"log/slog"
	"strings"
)

// Entry is a single map candidate.
//
// Entry is a value type; it is never modified after construction.
type Entry struct {
	Name string

	// Steam workshop ID of the map, or -1 when unknown.
	WorkshopID int64

	// Difficulty tier, 1 (very easy) to 10 (impossible).
	// Zero means the provider reported a tier name we do not recognize,
	// and -1 means no tier applies (workshop nominations and [NoChange]).
	Tier int
}

// NoChange is the option always present in the last slot of a vote.
// Winning it keeps the current map.
var NoChange = Entry{Name: "Don't change", WorkshopID: -1, Tier: -1}

// Equal reports whether e and other refer to the same map.
// Tier is not part of a map's identity.
func (e Entry) Equal(other Entry) bool {
	return e.Name == other.Name && e.WorkshopID == other.WorkshopID
}

// IsNoChange reports whether e is the [NoChange] sentinel.
func (e Entry) IsNoChange() bool {
	return e.Equal(NoChange)
}

// DisplayName is the name shown on a vote option,
// with the tier appended when one applies.
func (e Entry) DisplayName() string {
	if e.Tier == -1 {
		return e.Name
	}
	return fmt.Sprintf("%s (T%d)", e.Name, e.Tier)
}

func (e Entry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", e.Name),
		slog.Int64("workshop_id", e.WorkshopID),
		slog.Int("tier", e.Tier),
	)
}

// Contains reports whether any element of entries is equal to e.
func Contains(entries []Entry, e Entry) bool {
	for _, have := range entries {
		if have.Equal(e) {
			return true
		}
	}
	return false
}

// tierNames maps the provider's tier strings to their numeric tier.
var tierNames = map[string]int{
	"very-easy":  1,
	"easy":       2,
	"medium":     3,
	"advanced":   4,
	"hard":       5,
	"very-hard":  6,
	"extreme":    7,
	"death":      8,
	"unfeasible": 9,
	"impossible": 10,
}

// TierFromName converts a tier name such as "very-hard" to its number.
// Matching is case-insensitive and unknown names return 0.
func TierFromName(name string) int {
	return tierNames[strings.ToLower(name)]
}

// IsWorkshopID reports whether input has workshop ID syntax:
// exactly ten ASCII digits.
func IsWorkshopID(input string) bool {
	if len(input) != 10 {
		return false
	}
	for i := 0; i < len(input); i++ {
		if input[i] < '0' || input[i] > '9' {
			return false
		}
	}
	return true
}
