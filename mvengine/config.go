package mvengine

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/kzmapvote/kzmapvote/mvpool"
	"github.com/kzmapvote/kzmapvote/mvwatchdog"
)

const (
	DefaultSlotCount       = 5
	DefaultVoteDuration    = 30
	DefaultMapChangeDelay  = 3 * time.Second
	DefaultRefreshInterval = 15 * time.Minute
)

// Config is the configuration for [New].
type Config struct {
	Cache    *mvpool.Cache
	Resolver NominationResolver

	Notifier   Notifier
	MapChanger MapChanger

	// Optional.
	Display VoteDisplay

	// Defaults to StandardCountdown and StandardDelayer.
	Countdown Countdown
	Delayer   Delayer

	// Number of vote options, including the final "don't change" option.
	// Nominations are limited to SlotCount-1.
	SlotCount int

	// Vote length in whole seconds.
	VoteDuration int

	// Grace period between announcing the winning map and changing to it.
	MapChangeDelay time.Duration

	// Interval between background pool refreshes.
	// Negative disables periodic refreshes;
	// the pool is still refreshed once at startup.
	RefreshInterval time.Duration

	// Source for random slate entries.
	// Defaults to a randomly seeded PCG.
	Rand *rand.Rand

	Watchdog *mvwatchdog.Watchdog
}

// DefaultConfig returns a Config with every optional numeric field set to its default.
// The caller must still provide the dependencies.
func DefaultConfig() Config {
	return Config{
		SlotCount:       DefaultSlotCount,
		VoteDuration:    DefaultVoteDuration,
		MapChangeDelay:  DefaultMapChangeDelay,
		RefreshInterval: DefaultRefreshInterval,
	}
}

func (c *Config) setDefaults() {
	if c.Countdown == nil {
		c.Countdown = StandardCountdown{}
	}
	if c.Delayer == nil {
		c.Delayer = StandardDelayer{}
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

func (c Config) validate() error {
	var err error
	if c.Cache == nil {
		err = errors.Join(err, errors.New("Cache must not be nil"))
	}
	if c.Resolver == nil {
		err = errors.Join(err, errors.New("Resolver must not be nil"))
	}
	if c.Notifier == nil {
		err = errors.Join(err, errors.New("Notifier must not be nil"))
	}
	if c.MapChanger == nil {
		err = errors.Join(err, errors.New("MapChanger must not be nil"))
	}
	if c.Watchdog == nil {
		err = errors.Join(err, errors.New("Watchdog must not be nil"))
	}
	if c.SlotCount < 2 {
		err = errors.Join(err, errors.New("SlotCount must be at least 2"))
	}
	if c.VoteDuration < 1 {
		err = errors.Join(err, errors.New("VoteDuration must be positive"))
	}
	if c.MapChangeDelay < 0 {
		err = errors.Join(err, errors.New("MapChangeDelay must not be negative"))
	}
	if c.RefreshInterval == 0 {
		err = errors.Join(err, errors.New("RefreshInterval must be positive, or negative to disable"))
	}
	return err
}
