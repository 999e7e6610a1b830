package mvengine

import (
	"errors"
	"fmt"

	"github.com/kzmapvote/kzmapvote/mvnom"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
)

const (
	noticeVoteInProgress = "Vote already in progress."
	noticeMapChanging    = "Map is changing, please wait."
	noticeUsage          = "Usage: !nominate <map_name|workshop_id>"
	noticeNomLimit       = "Map nomination limit reached."
	noticeNomDuplicate   = "Map already nominated."
	noticePoolTooSmall   = "Not enough maps in the pool to start a vote."
	noticeVoteCancelled  = "Map vote cancelled."
	noticeNoVotes        = "Voting ended and no option was selected"
	noticePoolFetchError = "Error fetching map pool"

	noticeWorkshopNotFound = "Can't find workshop map"
	noticeNoMatch          = "No maps found."
	noticeAmbiguous        = "Multiple maps found."
	noticeResolveFailed    = "Failed to look up map, please try again."
)

func noticeRTVProgress(count, required int) string {
	return fmt.Sprintf("RTV requested: (%d/%d votes)", count, required)
}

func noticeVoteStarting(seconds int) string {
	return fmt.Sprintf("Starting map vote for %d seconds...", seconds)
}

func noticeNoChange(votes int) string {
	return fmt.Sprintf("Voting ended and the map won't change with %d vote(s).", votes)
}

func noticeMapSelected(name string, votes int) string {
	return fmt.Sprintf("Voting ended! The selected map is %s with %d vote(s).", name, votes)
}

func noticeNominated(player, mapName string) string {
	return fmt.Sprintf("%s nominated %s", player, mapName)
}

func noticeNotEligible(prefix string) string {
	return fmt.Sprintf("Only %s maps can be nominated.", prefix)
}

// resolveNotice is the player notice for a failed nomination resolution.
func resolveNotice(err error, requiredPrefix string) string {
	switch {
	case errors.Is(err, mvworkshop.ErrNotFound):
		return noticeWorkshopNotFound
	case errors.Is(err, mvworkshop.ErrNotEligible):
		return noticeNotEligible(requiredPrefix)
	case errors.Is(err, mvworkshop.ErrNoMatch):
		return noticeNoMatch
	case errors.Is(err, mvworkshop.ErrAmbiguous):
		return noticeAmbiguous
	default:
		return noticeResolveFailed
	}
}

// addNotice is the player notice for a failed registry insertion.
func addNotice(err error) string {
	if errors.Is(err, mvnom.ErrDuplicate) {
		return noticeNomDuplicate
	}
	return noticeNomLimit
}
