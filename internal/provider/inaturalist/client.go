package inaturalist

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/fieldquest/fieldquest-go/internal/conf"
	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/httpclient"
	"github.com/fieldquest/fieldquest-go/internal/identify"
	"github.com/fieldquest/fieldquest-go/internal/logging"
)

// ProviderName is the name reported on normalized results.
const ProviderName = "iNaturalist"

// Package-level logger specific to the iNaturalist service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "inaturalist.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "inaturalist", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize inaturalist file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "inaturalist")
		closeLogger = func() error { return nil }
	}
}

// Client scores images against the iNaturalist computer vision API. It
// implements the classification provider interface for the species target.
type Client struct {
	config  Config
	http    *httpclient.Client
	cache   *cache.Cache
	limiter *rate.Limiter
}

// NewClient creates a new iNaturalist client. The client ID may be empty; the
// client is still constructed and reports the missing credential per call, so
// a submission against multiple providers degrades instead of failing.
func NewClient(config Config, hc *httpclient.Client) *Client {
	defaults := DefaultConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
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
		cache:   cache.New(config.CacheTTL, config.CacheTTL*2),
		limiter: rate.NewLimiter(rate.Every(time.Duration(config.RateLimitMS)*time.Millisecond), 1),
	}

	logger.Info("iNaturalist client initialized",
		"endpoint", config.Endpoint,
		"cache_ttl", config.CacheTTL,
		"rate_limit_ms", config.RateLimitMS,
		"client_id_configured", config.ClientID != "")

	return client
}

// NewFromSettings builds a client from the provider settings block.
func NewFromSettings(settings *conf.INaturalistSettings, hc *httpclient.Client) *Client {
	cfg := Config{}
	if settings != nil {
		cfg.ClientID = settings.ClientID
		cfg.Endpoint = settings.Endpoint
		cfg.RateLimitMS = settings.RateLimitMS
		if settings.CacheTTLMin > 0 {
			cfg.CacheTTL = time.Duration(settings.CacheTTLMin) * time.Minute
		}
	}
	return NewClient(cfg, hc)
}

// Name implements the provider interface.
func (c *Client) Name() string { return ProviderName }

// Target implements the provider interface.
func (c *Client) Target() identify.Target { return identify.TargetSpecies }

// MediaKind implements the provider interface.
func (c *Client) MediaKind() identify.MediaKind { return identify.MediaImage }

// Classify scores the submission's image and normalizes the top suggestion.
// Identical images with identical coordinates are served from cache.
func (c *Client) Classify(ctx context.Context, sub *identify.MediaSubmission) (identify.NormalizedResult, error) {
	if c.config.ClientID == "" {
		return identify.NormalizedResult{}, errors.Newf("iNaturalist client ID is not configured").
			Category(errors.CategoryConfiguration).
			Component("provider/inaturalist").
			Build()
	}
	if len(sub.ImageData) == 0 {
		return identify.NormalizedResult{}, errors.Newf("no image data provided").
			Category(errors.CategoryValidation).
			Component("provider/inaturalist").
			Build()
	}

	cacheKey := c.cacheKey(sub)
	if cached, found := c.cache.Get(cacheKey); found {
		if result, ok := cached.(identify.NormalizedResult); ok {
			logger.Debug("iNaturalist score cache hit", "cache_key", cacheKey)
			return result, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return identify.NormalizedResult{}, errors.Newf("rate limiter wait interrupted: %w", err).
			Category(errors.CategoryCancellation).
			Component("provider/inaturalist").
			Build()
	}

	body, contentType, err := c.buildForm(sub)
	if err != nil {
		return identify.NormalizedResult{}, err
	}

	result, err := c.scoreImage(ctx, body, contentType)
	if err != nil {
		return identify.NormalizedResult{}, err
	}

	c.cache.Set(cacheKey, result, cache.DefaultExpiration)
	return result, nil
}

// buildForm assembles the multipart request the score_image endpoint expects:
// the image file, the client ID, and optional coordinates.
func (c *Client) buildForm(sub *identify.MediaSubmission) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "field.jpg")
	if err == nil {
		_, err = part.Write(sub.ImageData)
	}
	if err == nil {
		err = w.WriteField("client_id", c.config.ClientID)
	}
	if err == nil && sub.Latitude != nil {
		err = w.WriteField("lat", strconv.FormatFloat(*sub.Latitude, 'f', -1, 64))
	}
	if err == nil && sub.Longitude != nil {
		err = w.WriteField("lng", strconv.FormatFloat(*sub.Longitude, 'f', -1, 64))
	}
	if err == nil {
		err = w.Close()
	}
	if err != nil {
		return nil, "", errors.Newf("failed to build multipart form: %w", err).
			Category(errors.CategoryGeneric).
			Component("provider/inaturalist").
			Build()
	}
	return &buf, w.FormDataContentType(), nil
}

func (c *Client) scoreImage(ctx context.Context, body *bytes.Buffer, contentType string) (identify.NormalizedResult, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, body)
	if err != nil {
		return identify.NormalizedResult{}, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", c.config.Endpoint).
			Component("provider/inaturalist").
			Build()
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		logger.Error("iNaturalist API request failed",
			"error", err,
			"url", c.config.Endpoint)
		return identify.NormalizedResult{}, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			NetworkContext(c.config.Endpoint, c.config.Timeout).
			Component("provider/inaturalist").
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
			Component("provider/inaturalist").
			Build()
	}

	if resp.StatusCode >= 400 {
		logger.Warn("iNaturalist API error response",
			"status_code", resp.StatusCode,
			"url", c.config.Endpoint,
			"response_preview", preview(bodyBytes))
		return identify.NormalizedResult{}, errors.Newf("iNaturalist API error (status %d)", resp.StatusCode).
			Category(getErrorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Context("url", c.config.Endpoint).
			Component("provider/inaturalist").
			Build()
	}

	var parsed scoreResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		logger.Error("Failed to parse iNaturalist API response",
			"error", err,
			"response_size", len(bodyBytes),
			"response_preview", preview(bodyBytes))
		return identify.NormalizedResult{}, errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryProviderResponse).
			Context("response_size", len(bodyBytes)).
			Component("provider/inaturalist").
			Build()
	}

	duration := time.Since(start)

	if len(parsed.Results) == 0 {
		logger.Info("iNaturalist returned no suggestions",
			"duration_ms", duration.Milliseconds())
		result := identify.NoMatchResult(ProviderName, identify.TargetSpecies, json.RawMessage(bodyBytes))
		result.Reason = "no suggestions returned"
		return result, nil
	}

	best := parsed.Results[0]
	logger.Info("iNaturalist identification successful",
		"label", best.label(),
		"score", best.Score,
		"duration_ms", duration.Milliseconds())

	result := identify.OKResult(ProviderName, identify.TargetSpecies, best.label(),
		identify.Float64(best.Score), json.RawMessage(bodyBytes))
	return result, nil
}

// cacheKey derives a stable key from the image bytes and coordinates.
func (c *Client) cacheKey(sub *identify.MediaSubmission) string {
	h := sha256.New()
	h.Write(sub.ImageData)
	if sub.Latitude != nil && sub.Longitude != nil {
		fmt.Fprintf(h, "|%f|%f", *sub.Latitude, *sub.Longitude)
	}
	return "score:" + hex.EncodeToString(h.Sum(nil))
}

// Close cleans up client resources
func (c *Client) Close() {
	logger.Info("Closing iNaturalist client")
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing inaturalist logger: %v", err)
		}
	}
}

func preview(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
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
