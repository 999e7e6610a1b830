package mvprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"
)

// DefaultWorkshopURL is the Steam GetDetails endpoint.
const DefaultWorkshopURL = "https://api.steampowered.com/IPublishedFileService/GetDetails/v1/"

// SteamClientConfig is the configuration for [NewSteamClient].
type SteamClientConfig struct {
	// Defaults to [http.DefaultClient].
	Client *http.Client

	// Defaults to [DefaultWorkshopURL].
	URL string

	// Optional Steam web API key.
	APIKey string

	// Maximum request rate to the Steam API.
	// Zero or negative means unlimited.
	RequestsPerSecond float64
}

// SteamClient fetches workshop titles from Steam.
// It satisfies [mvworkshop.TitleFetcher].
type SteamClient struct {
	log *slog.Logger

	client *http.Client
	url    string
	apiKey string

	limiter *rate.Limiter
}

func NewSteamClient(log *slog.Logger, cfg SteamClientConfig) *SteamClient {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	u := cfg.URL
	if u == "" {
		u = DefaultWorkshopURL
	}

	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &SteamClient{
		log: log,

		client: client,
		url:    u,
		apiKey: cfg.APIKey,

		limiter: lim,
	}
}

type steamDetailsResponse struct {
	Response struct {
		PublishedFileDetails []struct {
			Title *string `json:"title"`
		} `json:"publishedfiledetails"`
	} `json:"response"`
}

// FetchTitle returns the title of the workshop item with the given ID.
// A response without a title yields ok=false and a nil error.
func (c *SteamClient) FetchTitle(ctx context.Context, workshopID int64) (string, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", false, fmt.Errorf("waiting for steam rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(workshopID), nil)
	if err != nil {
		return "", false, fmt.Errorf("failed to build workshop request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to get workshop details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("got unexpected response status: %d", resp.StatusCode)
	}

	title, ok, err := ParseTitle(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, err
	}
	if !ok {
		c.log.Debug("Workshop item has no title", "workshop_id", workshopID)
	}
	return title, ok, nil
}

func (c *SteamClient) requestURL(workshopID int64) string {
	// Key first, then the file ID, as documented by Steam.
	u := c.url + "?"
	if c.apiKey != "" {
		u += "key=" + url.QueryEscape(c.apiKey) + "&"
	}
	return u + "publishedfileids%5B0%5D=" + strconv.FormatInt(workshopID, 10)
}

// ParseTitle decodes a GetDetails response
// and returns the title of the first published file.
func ParseTitle(r io.Reader) (title string, ok bool, err error) {
	var sr steamDetailsResponse
	if err := json.NewDecoder(r).Decode(&sr); err != nil {
		return "", false, fmt.Errorf("failed to parse workshop details: %w", err)
	}

	details := sr.Response.PublishedFileDetails
	if len(details) == 0 || details[0].Title == nil {
		return "", false, nil
	}
	return *details[0].Title, true, nil
}
