// Package birdweather provides a client for the BirdWeather acoustic
// identification API, used for bird identification from audio samples.
package birdweather

import "time"

// Config holds configuration for the BirdWeather client
type Config struct {
	APIKey      string        `json:"api_key"`
	Endpoint    string        `json:"endpoint"`
	Timeout     time.Duration `json:"timeout"`
	RateLimitMS int           `json:"rate_limit_ms"` // Milliseconds between requests
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Endpoint:    "https://api.birdweather.com/v1/identify",
		Timeout:     30 * time.Second,
		RateLimitMS: 500,
	}
}

// identifyRequest is the JSON body sent to the identify endpoint. Audio is
// base64 encoded; coordinates are optional.
type identifyRequest struct {
	Audio     string   `json:"audio"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// identifyResponse is the identify API response envelope
type identifyResponse struct {
	Predictions []prediction `json:"predictions"`
}

// prediction is one acoustic match
type prediction struct {
	Species        string  `json:"species"`
	ScientificName string  `json:"scientific_name"`
	Confidence     float64 `json:"confidence"`
}
