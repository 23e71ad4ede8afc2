// Package macro provides a client for the macroinvertebrate identification
// API with an on-device heuristic fallback for offline field work.
package macro

import "time"

// Config holds configuration for the macro client
type Config struct {
	APIKey          string        `json:"api_key"`
	Endpoint        string        `json:"endpoint"`
	Timeout         time.Duration `json:"timeout"`
	RateLimitMS     int           `json:"rate_limit_ms"` // Milliseconds between requests
	OfflineFallback bool          `json:"offline_fallback"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:        "https://api.macroinvertebrate.org/v1/identify",
		Timeout:         30 * time.Second,
		RateLimitMS:     500,
		OfflineFallback: true,
	}
}

// identifyRequest is the JSON body sent to the identify endpoint. Image is
// base64 encoded; coordinates are optional.
type identifyRequest struct {
	Image     string   `json:"image"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// identifyResponse is the identify API response envelope
type identifyResponse struct {
	Results []matchEntry `json:"results"`
}

// matchEntry is one identification candidate
type matchEntry struct {
	CommonName     string  `json:"common_name"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
}

// label prefers the common name, falling back to the scientific name.
func (e *matchEntry) label() string {
	if e.CommonName != "" {
		return e.CommonName
	}
	return e.ScientificName
}
