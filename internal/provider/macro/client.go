package macro

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

// ProviderName is the name reported on normalized results from the remote API.
const ProviderName = "Macro API"

// Package-level logger specific to the macro service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "macro.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "macro", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize macro file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "macro")
		closeLogger = func() error { return nil }
	}
}

// Client identifies aquatic macroinvertebrates from images. It tries the
// remote API when a key is configured and can fall back to the on-device
// heuristic, so field crews without connectivity still get a candidate.
type Client struct {
	config  Config
	http    *httpclient.Client
	limiter *rate.Limiter
}

// NewClient creates a new macro client.
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

	logger.Info("Macro client initialized",
		"endpoint", config.Endpoint,
		"rate_limit_ms", config.RateLimitMS,
		"api_key_configured", config.APIKey != "",
		"offline_fallback", config.OfflineFallback)

	return client
}

// NewFromSettings builds a client from the provider settings block.
func NewFromSettings(settings *conf.MacroSettings, hc *httpclient.Client) *Client {
	cfg := Config{}
	if settings != nil {
		cfg.APIKey = settings.APIKey
		cfg.Endpoint = settings.Endpoint
		cfg.RateLimitMS = settings.RateLimitMS
		cfg.OfflineFallback = settings.OfflineFallback
	}
	return NewClient(cfg, hc)
}

// Name implements the provider interface.
func (c *Client) Name() string { return ProviderName }

// Target implements the provider interface.
func (c *Client) Target() identify.Target { return identify.TargetMacro }

// MediaKind implements the provider interface.
func (c *Client) MediaKind() identify.MediaKind { return identify.MediaImage }

// Classify identifies the submission's image. With no API key configured the
// offline heuristic answers directly; with a key, a remote failure falls back
// to the heuristic instead of surfacing an error when fallback is enabled.
func (c *Client) Classify(ctx context.Context, sub *identify.MediaSubmission) (identify.NormalizedResult, error) {
	if len(sub.ImageData) == 0 {
		return identify.NormalizedResult{}, errors.Newf("macro identification requires an image").
			Category(errors.CategoryValidation).
			Component("provider/macro").
			Build()
	}

	if c.config.APIKey == "" {
		if c.config.OfflineFallback {
			if result, ok := runOfflineModel(sub.ImageData); ok {
				logger.Info("Macro identified offline",
					"label", result.Label,
					"reason", "no API key configured")
				return result, nil
			}
		}
		return identify.NormalizedResult{}, errors.Newf("macro API key is not configured").
			Category(errors.CategoryConfiguration).
			Component("provider/macro").
			Build()
	}

	result, err := c.identifyRemote(ctx, sub)
	if err != nil {
		if c.config.OfflineFallback {
			if offline, ok := runOfflineModel(sub.ImageData); ok {
				logger.Warn("Macro remote API failed, falling back to offline model",
					"error", err)
				return offline, nil
			}
		}
		return identify.NormalizedResult{}, err
	}
	return result, nil
}

func (c *Client) identifyRemote(ctx context.Context, sub *identify.MediaSubmission) (identify.NormalizedResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return identify.NormalizedResult{}, errors.Newf("rate limiter wait interrupted: %w", err).
			Category(errors.CategoryCancellation).
			Component("provider/macro").
			Build()
	}

	payload := identifyRequest{
		Image:     base64.StdEncoding.EncodeToString(sub.ImageData),
		Latitude:  sub.Latitude,
		Longitude: sub.Longitude,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to marshal request body: %w", err).
			Category(errors.CategoryGeneric).
			Component("provider/macro").
			Build()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", c.config.Endpoint).
			Component("provider/macro").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		logger.Error("Macro API request failed",
			"error", err,
			"url", c.config.Endpoint)
		return identify.NormalizedResult{}, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			NetworkContext(c.config.Endpoint, c.config.Timeout).
			Component("provider/macro").
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
			Component("provider/macro").
			Build()
	}

	if resp.StatusCode >= 400 {
		logger.Warn("Macro API error response",
			"status_code", resp.StatusCode,
			"url", c.config.Endpoint)
		return identify.NormalizedResult{}, errors.Newf("macro API error (status %d)", resp.StatusCode).
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", c.config.Endpoint).
			Component("provider/macro").
			Build()
	}

	var parsed identifyResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		logger.Error("Failed to parse macro API response",
			"error", err,
			"response_size", len(bodyBytes))
		return identify.NormalizedResult{}, errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryProviderResponse).
			Context("response_size", len(bodyBytes)).
			Component("provider/macro").
			Build()
	}

	duration := time.Since(start)

	if len(parsed.Results) == 0 {
		logger.Info("Macro API returned no candidates",
			"duration_ms", duration.Milliseconds())
		result := identify.NoMatchResult(ProviderName, identify.TargetMacro, json.RawMessage(bodyBytes))
		result.Reason = "no macro candidates returned"
		return result, nil
	}

	best := parsed.Results[0]
	logger.Info("Macro identification successful",
		"label", best.label(),
		"confidence", best.Confidence,
		"duration_ms", duration.Milliseconds())

	return identify.OKResult(ProviderName, identify.TargetMacro, best.label(),
		identify.Float64(best.Confidence), json.RawMessage(bodyBytes)), nil
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing macro client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing macro logger: %v", err)
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
