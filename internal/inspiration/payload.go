package inspiration

import (
	"encoding/json"

	"github.com/contentpulse/inspiration-api/internal/reddit"
)

// Payload variants are tagged by the scope of the cache entry that holds
// them, so a decoded entry can never be mistaken for a different query
// shape.

// SearchPayload holds the result of a content search.
type SearchPayload struct {
	Topic string        `json:"topic"`
	Posts []reddit.Post `json:"posts"`
}

// SeriesPayload holds an interest-over-time series.
type SeriesPayload struct {
	Keywords []string        `json:"keywords"`
	Start    string          `json:"start_date"`
	End      string          `json:"end_date,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// RegionPayload holds a per-region interest breakdown.
type RegionPayload struct {
	Keywords []string        `json:"keywords"`
	Region   string          `json:"region,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// RelatedPayload holds related-queries, related-topics, realtime and
// today results. Kind disambiguates them within the global-trends scope.
type RelatedPayload struct {
	Kind     string          `json:"kind"`
	Keywords []string        `json:"keywords,omitempty"`
	Data     json.RawMessage `json:"data"`
}

// TrendingResult is the best-effort trending feed. Degraded is set when
// an upstream failure was suppressed and the feed is empty or partial.
type TrendingResult struct {
	Posts    []reddit.Post `json:"posts"`
	Degraded bool          `json:"degraded"`
}
