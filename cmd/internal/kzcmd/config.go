package kzcmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kzmapvote/kzmapvote/mvengine"
	"github.com/kzmapvote/kzmapvote/mvprovider"
	"github.com/kzmapvote/kzmapvote/mvworkshop"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding flags.
// A flag such as --steam-api-key is read from KZMAPVOTE_STEAM_API_KEY.
const EnvPrefix = "KZMAPVOTE"

const (
	configFlag   = "config"
	logLevelFlag = "log-level"

	steamAPIKeyFlag = "steam-api-key"
	steamRateFlag   = "steam-rate"
	workshopURLFlag = "workshop-url"
	poolURLFlag     = "pool-url"

	requiredPrefixFlag = "required-prefix"

	voteDurationFlag    = "vote-duration"
	slotCountFlag       = "slot-count"
	mapChangeDelayFlag  = "map-change-delay"
	refreshIntervalFlag = "refresh-interval"

	httpAddrFlag     = "http-addr"
	httpAddrFileFlag = "http-addr-file"

	callbackURLFlag    = "callback-url"
	callbackSocketFlag = "callback-socket"

	dbPathFlag = "db-path"
)

// addConfigFlags adds the flags shared by every subcommand.
func addConfigFlags(fs *pflag.FlagSet) {
	fs.String(configFlag, "", "Path to a config file (e.g. config.toml) whose keys are flag names")
	fs.String(logLevelFlag, "info", "Minimum log level (debug|info|warn|error)")

	fs.String(steamAPIKeyFlag, "", "Steam web API key used for workshop lookups; optional")
	fs.Float64(steamRateFlag, 2, "Maximum Steam API requests per second; zero for unlimited")
	fs.String(workshopURLFlag, mvprovider.DefaultWorkshopURL, "Steam published file GetDetails endpoint")
	fs.String(poolURLFlag, mvprovider.DefaultPoolURL, "cs2kz map pool endpoint")

	fs.String(requiredPrefixFlag, mvworkshop.DefaultRequiredPrefix, "Prefix required on nominated workshop map titles")

	fs.Int(voteDurationFlag, mvengine.DefaultVoteDuration, "Vote length in seconds")
	fs.Int(slotCountFlag, mvengine.DefaultSlotCount, "Number of vote options, including the option to keep the current map")
	fs.Duration(mapChangeDelayFlag, mvengine.DefaultMapChangeDelay, "Delay between announcing the winning map and changing to it")
	fs.Duration(refreshIntervalFlag, mvengine.DefaultRefreshInterval, "Interval between map pool refreshes; negative disables periodic refreshes")

	fs.String(httpAddrFlag, "127.0.0.1:27080", "TCP address of the host bridge HTTP server")
	fs.String(httpAddrFileFlag, "", "Write the actual HTTP listen address to the given file (useful when listening on port 0)")

	fs.String(callbackURLFlag, "", "URL the host serves for notices and map changes; a request path when --callback-socket is set")
	fs.String(callbackSocketFlag, "", "Unix socket path of the host's callback server; optional")

	fs.String(dbPathFlag, "", "Path to the SQLite database holding the last map pool; if blank, uses an in-memory database")
}

// bindViper binds cmd's flags, the environment,
// and the optional config file into v.
func bindViper(v *viper.Viper, cmd *cobra.Command) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := v.GetString(configFlag); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	return nil
}

// appConfig is the resolved configuration of a subcommand.
type appConfig struct {
	SteamAPIKey string
	SteamRate   float64
	WorkshopURL string
	PoolURL     string

	RequiredPrefix string

	VoteDuration    int
	SlotCount       int
	MapChangeDelay  time.Duration
	RefreshInterval time.Duration

	HTTPAddr     string
	HTTPAddrFile string

	CallbackURL    string
	CallbackSocket string

	DBPath string
}

func loadAppConfig(v *viper.Viper) (appConfig, error) {
	c := appConfig{
		SteamAPIKey: v.GetString(steamAPIKeyFlag),
		SteamRate:   v.GetFloat64(steamRateFlag),
		WorkshopURL: v.GetString(workshopURLFlag),
		PoolURL:     v.GetString(poolURLFlag),

		RequiredPrefix: v.GetString(requiredPrefixFlag),

		VoteDuration:    v.GetInt(voteDurationFlag),
		SlotCount:       v.GetInt(slotCountFlag),
		MapChangeDelay:  v.GetDuration(mapChangeDelayFlag),
		RefreshInterval: v.GetDuration(refreshIntervalFlag),

		HTTPAddr:     v.GetString(httpAddrFlag),
		HTTPAddrFile: v.GetString(httpAddrFileFlag),

		CallbackURL:    v.GetString(callbackURLFlag),
		CallbackSocket: v.GetString(callbackSocketFlag),

		DBPath: v.GetString(dbPathFlag),
	}

	var err error
	if c.PoolURL == "" {
		err = errors.Join(err, fmt.Errorf("--%s must not be empty", poolURLFlag))
	}
	if c.WorkshopURL == "" {
		err = errors.Join(err, fmt.Errorf("--%s must not be empty", workshopURLFlag))
	}
	if c.SteamRate < 0 {
		err = errors.Join(err, fmt.Errorf("--%s must not be negative", steamRateFlag))
	}
	if c.VoteDuration < 1 {
		err = errors.Join(err, fmt.Errorf("--%s must be positive", voteDurationFlag))
	}
	if c.SlotCount < 2 {
		err = errors.Join(err, fmt.Errorf("--%s must be at least 2", slotCountFlag))
	}
	if c.MapChangeDelay < 0 {
		err = errors.Join(err, fmt.Errorf("--%s must not be negative", mapChangeDelayFlag))
	}
	if c.RefreshInterval == 0 {
		err = errors.Join(err, fmt.Errorf("--%s must not be zero", refreshIntervalFlag))
	}
	return c, err
}
