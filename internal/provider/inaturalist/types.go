// Package inaturalist provides a client for the iNaturalist computer vision
// scoring API, used for general species identification from images.
package inaturalist

import "time"

// Config holds configuration for the iNaturalist client
type Config struct {
	ClientID    string        `json:"client_id"`
	Endpoint    string        `json:"endpoint"`
	Timeout     time.Duration `json:"timeout"`
	CacheTTL    time.Duration `json:"cache_ttl"`
	RateLimitMS int           `json:"rate_limit_ms"` // Milliseconds between requests
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:    "https://api.inaturalist.org/v1/computervision/score_image",
		Timeout:     30 * time.Second,
		CacheTTL:    10 * time.Minute,
		RateLimitMS: 1000,
	}
}

// scoreResponse is the score_image API response envelope
type scoreResponse struct {
	TotalResults int          `json:"total_results"`
	Results      []scoreEntry `json:"results"`
}

// scoreEntry is one vision suggestion with its taxon
type scoreEntry struct {
	Score float64 `json:"score"`
	Taxon taxon   `json:"taxon"`
}

type taxon struct {
	Name                string `json:"name"`
	PreferredCommonName string `json:"preferred_common_name"`
	Rank                string `json:"rank"`
	ID                  int    `json:"id"`
}

// label prefers the scientific name, falling back to the common name.
func (e *scoreEntry) label() string {
	if e.Taxon.Name != "" {
		return e.Taxon.Name
	}
	return e.Taxon.PreferredCommonName
}
