package mvengine

import (
	"context"

	"github.com/google/uuid"
	"github.com/kzmapvote/kzmapvote/mvmap"
)

// Player identifies the player issuing a command.
type Player struct {
	// The host's player slot ID.
	ID int

	// Display name, used in broadcast notices.
	Name string
}

// Notifier delivers chat notices to players.
// Methods are called from the kernel goroutine and must return promptly;
// implementations performing I/O should queue the notice.
type Notifier interface {
	// Broadcast sends msg to every connected player.
	Broadcast(ctx context.Context, msg string)

	// Tell sends msg to a single player.
	Tell(ctx context.Context, playerID int, msg string)
}

// MapChanger applies the winning map.
// ChangeMap is called on a background goroutine and may block.
type MapChanger interface {
	ChangeMap(ctx context.Context, workshopID int64) error
}

// VoteView is what a host needs to render the vote menu.
type VoteView struct {
	ID        uuid.UUID
	Options   []mvmap.Entry
	Tally     []int
	Remaining int
}

// VoteDisplay is optionally implemented by a host that shows a vote menu.
// Like [Notifier], its methods are called from the kernel and must return promptly.
type VoteDisplay interface {
	// ShowVote is called when a vote starts and after every countdown tick.
	ShowVote(ctx context.Context, v VoteView)

	// CloseVote is called when the vote with the given ID ends for any reason.
	CloseVote(ctx context.Context, id uuid.UUID)
}

// NominationResolver converts nomination input to a map.
// It is satisfied by [*mvworkshop.Resolver].
// Resolve is called on background goroutines.
type NominationResolver interface {
	Resolve(ctx context.Context, input string) (mvmap.Entry, error)
}
