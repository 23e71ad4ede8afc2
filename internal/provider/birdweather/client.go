package birdweather

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/httpclient"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/logging"
)

// ProviderName is the name reported on normalized results.
const ProviderName = "BirdWeather"

// Package-level logger specific to the BirdWeather service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "birdweather.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "birdweather", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize birdweather file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "birdweather")
		closeLogger = func() error { return nil }
	}
}

// Client identifies bird calls through the BirdWeather acoustic API. It
// implements the classification provider interface for the bird target.
type Client struct {
	config  Config
	http    *httpclient.Client
	limiter *rate.Limiter
}

// NewClient creates a new BirdWeather client. A missing API key surfaces per
// call, not at construction time.
func NewClient(config Config, hc *httpclient.Client) *Client {
	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.RateLimitMS == 0 {
		config.RateLimitMS = defaults.RateLimitMS
	}
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{DefaultTimeout: config.Timeout})
	}

	client := &Client{
		config:  config,
		http:    hc,
		limiter: rate.NewLimiter(rate.Every(time.Duration(config.RateLimitMS)*time.Millisecond), 1),
	}

	logger.Info("BirdWeather client initialized",
		"endpoint", config.Endpoint,
		"rate_limit_ms", config.RateLimitMS,
		"api_key_configured", config.APIKey != "")

	return client
}

// NewFromSettings builds a client from the provider settings block.
func NewFromSettings(settings *conf.BirdWeatherSettings, hc *httpclient.Client) *Client {
	cfg := Config{}
	if settings != nil {
		cfg.APIKey = settings.APIKey
		cfg.Endpoint = settings.Endpoint
		cfg.RateLimitMS = settings.RateLimitMS
	}
	return NewClient(cfg, hc)
}

// Name implements the provider interface.
func (c *Client) Name() string { return ProviderName }

// Target implements the provider interface.
func (c *Client) Target() identify.Target { return identify.TargetBird }

// MediaKind implements the provider interface.
func (c *Client) MediaKind() identify.MediaKind { return identify.MediaAudio }

// Classify sends the submission's audio sample for acoustic identification
// and normalizes the top prediction.
func (c *Client) Classify(ctx context.Context, sub *identify.MediaSubmission) (identify.NormalizedResult, error) {
	if c.config.APIKey == "" {
		return identify.NormalizedResult{}, errors.Newf("BirdWeather API key is not configured").
			Category(errors.CategoryConfiguration).
			Component("provider/birdweather").
			Build()
	}
	if len(sub.AudioData) == 0 {
		return identify.NormalizedResult{}, errors.Newf("audio sample required for bird identification").
			Category(errors.CategoryValidation).
			Component("provider/birdweather").
			Build()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return identify.NormalizedResult{}, errors.Newf("rate limiter wait interrupted: %w", err).
			Category(errors.CategoryCancellation).
			Component("provider/birdweather").
			Build()
	}

	payload := identifyRequest{
		Audio:     base64.StdEncoding.EncodeToString(sub.AudioData),
		Latitude:  sub.Latitude,
		Longitude: sub.Longitude,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to marshal request body: %w", err).
			Category(errors.CategoryGeneric).
			Component("provider/birdweather").
			Build()
	}

	return c.identify(ctx, body)
}

func (c *Client) identify(ctx context.Context, body []byte) (identify.NormalizedResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", c.config.Endpoint).
			Component("provider/birdweather").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		logger.Error("BirdWeather API request failed",
			"error", err,
			"url", c.config.Endpoint)
		return identify.NormalizedResult{}, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			NetworkContext(c.config.Endpoint, c.config.Timeout).
			Component("provider/birdweather").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("provider/birdweather").
			Build()
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			logger.Error("BirdWeather API authentication failed",
				"status_code", resp.StatusCode,
				"url", c.config.Endpoint,
				"api_key_configured", c.config.APIKey != "")
		} else {
			logger.Warn("BirdWeather API error response",
				"status_code", resp.StatusCode,
				"url", c.config.Endpoint)
		}
		return identify.NormalizedResult{}, errors.Newf("BirdWeather API error (status %d)", resp.StatusCode).
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", c.config.Endpoint).
			Component("provider/birdweather").
			Build()
	}

	var parsed identifyResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		logger.Error("Failed to parse BirdWeather API response",
			"error", err,
			"response_size", len(bodyBytes))
		return identify.NormalizedResult{}, errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryProviderResponse).
			Context("response_size", len(bodyBytes)).
			Component("provider/birdweather").
			Build()
	}

	duration := time.Since(start)

	if len(parsed.Predictions) == 0 {
		logger.Info("BirdWeather returned no predictions",
			"duration_ms", duration.Milliseconds())
		result := identify.NoMatchResult(ProviderName, identify.TargetBird, json.RawMessage(bodyBytes))
		result.Reason = "no bird predictions returned"
		return result, nil
	}

	top := parsed.Predictions[0]
	logger.Info("BirdWeather identification successful",
		"species", top.Species,
		"confidence", top.Confidence,
		"duration_ms", duration.Milliseconds())

	return identify.OKResult(ProviderName, identify.TargetBird, top.Species,
		identify.Float64(top.Confidence), json.RawMessage(bodyBytes)), nil
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing BirdWeather client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing birdweather logger: %v", err)
		}
	}
}

// getErrorCategory determines the error category based on HTTP status code
func getErrorCategory(statusCode int) errors.ErrorCategory {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return errors.CategoryAuthorization
	case statusCode == http.StatusNotFound:
		return errors.CategoryNotFound
	case statusCode == http.StatusTooManyRequests:
		return errors.CategoryRetry
	case statusCode >= 500:
		return errors.CategoryHTTP
	default:
		return errors.CategoryProviderResponse
	}
}
