package mvprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kzmapvote/kzmapvote/mvmap"
)

// DefaultPoolURL is the cs2kz endpoint listing all approved maps.
const DefaultPoolURL = "https://api.cs2kz.org/maps"

// maxPoolResponseSize guards against a misbehaving provider.
const maxPoolResponseSize = 32 << 20

// PoolClient fetches the map pool from the cs2kz API.
// It satisfies [mvpool.Fetcher].
type PoolClient struct {
	log *slog.Logger

	client *http.Client
	url    string
}

// NewPoolClient returns a PoolClient.
// A nil client uses [http.DefaultClient] and an empty url uses [DefaultPoolURL].
func NewPoolClient(log *slog.Logger, client *http.Client, url string) *PoolClient {
	if client == nil {
		client = http.DefaultClient
	}
	if url == "" {
		url = DefaultPoolURL
	}
	return &PoolClient{
		log: log,

		client: client,
		url:    url,
	}
}

type poolResponse struct {
	Values []json.RawMessage `json:"values"`
}

type poolMap struct {
	Name       *string `json:"name"`
	WorkshopID *int64  `json:"workshop_id"`

	Courses []struct {
		Filters struct {
			Classic struct {
				NubTier *string `json:"nub_tier"`
			} `json:"classic"`
		} `json:"filters"`
	} `json:"courses"`
}

func (c *PoolClient) FetchPool(ctx context.Context) ([]mvmap.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pool request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get map pool: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("got unexpected response status: %d", resp.StatusCode)
	}

	return ParsePool(c.log, io.LimitReader(resp.Body, maxPoolResponseSize))
}

// ParsePool decodes a cs2kz map listing.
// Descriptors missing a name, a workshop ID, or a first course with a tier
// are skipped, as are descriptors that do not decode at all.
func ParsePool(log *slog.Logger, r io.Reader) ([]mvmap.Entry, error) {
	var pr poolResponse
	if err := json.NewDecoder(r).Decode(&pr); err != nil {
		return nil, fmt.Errorf("failed to parse map pool: %w", err)
	}
	if pr.Values == nil {
		return nil, fmt.Errorf("map pool response has no values array")
	}

	out := make([]mvmap.Entry, 0, len(pr.Values))
	skipped := 0
	for i, raw := range pr.Values {
		var m poolMap
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Debug("Skipping undecodable map descriptor", "index", i, "err", err)
			skipped++
			continue
		}

		if m.Name == nil || m.WorkshopID == nil || len(m.Courses) == 0 {
			skipped++
			continue
		}
		tier := m.Courses[0].Filters.Classic.NubTier
		if tier == nil {
			skipped++
			continue
		}

		out = append(out, mvmap.Entry{
			Name:       *m.Name,
			WorkshopID: *m.WorkshopID,
			Tier:       mvmap.TierFromName(*tier),
		})
	}

	if skipped > 0 {
		log.Debug("Skipped incomplete map descriptors", "n", skipped)
	}

	return out, nil
}
