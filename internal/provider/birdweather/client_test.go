package birdweather

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/httpclient"
	"github.com/fieldquest/fieldquest-go/internal/identify"
)

const testEndpoint = "https://app.birdweather.test/v1/identify"

func newTestClient(t *testing.T, apiKey string) *Client {
	t.Helper()

	hc := httpclient.New(nil)
	httpmock.ActivateNonDefault(hc.StdClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient(Config{
		APIKey:      apiKey,
		Endpoint:    testEndpoint,
		RateLimitMS: 1,
	}, hc)
}

func audioSubmission() *identify.MediaSubmission {
	return &identify.MediaSubmission{
		Kind:      identify.MediaAudio,
		AudioData: []byte("wav-bytes"),
		UserID:    "user-1",
		Targets:   []identify.Target{identify.TargetBird},
	}
}

func TestClassifySuccess(t *testing.T) {
	client := newTestClient(t, "secret-key")

	var gotAuth string
	var gotBody identifyRequest
	httpmock.RegisterResponder("POST", testEndpoint,
		func(req *http.Request) (*http.Response, error) {
			gotAuth = req.Header.Get("Authorization")
			if err := json.NewDecoder(req.Body).Decode(&gotBody); err != nil {
				return httpmock.NewStringResponse(400, ""), nil
			}
			return httpmock.NewStringResponse(200, `{
				"predictions": [
					{"species": "Common Loon", "scientific_name": "Gavia immer", "confidence": 0.88},
					{"species": "Red-throated Loon", "confidence": 0.04}
				]
			}`), nil
		})

	sub := audioSubmission()
	sub.Latitude = identify.Float64(61.5)
	sub.Longitude = identify.Float64(23.8)

	result, err := client.Classify(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sub.AudioData), gotBody.Audio)
	require.NotNil(t, gotBody.Latitude)
	assert.InDelta(t, 61.5, *gotBody.Latitude, 1e-9)

	assert.Equal(t, ProviderName, result.Provider)
	assert.Equal(t, identify.TargetBird, result.Target)
	assert.Equal(t, identify.OutcomeOK, result.Outcome)
	assert.Equal(t, "Common Loon", result.Label)
	require.NotNil(t, result.Confidence)
	assert.InDelta(t, 0.88, *result.Confidence, 1e-9)
}

func TestClassifyNoPredictions(t *testing.T) {
	client := newTestClient(t, "secret-key")

	httpmock.RegisterResponder("POST", testEndpoint,
		httpmock.NewStringResponder(200, `{"predictions": []}`))

	result, err := client.Classify(context.Background(), audioSubmission())
	require.NoError(t, err)
	assert.Equal(t, identify.OutcomeNoMatch, result.Outcome)
	assert.Equal(t, "no bird predictions returned", result.Reason)
	assert.Nil(t, result.Confidence)
}

func TestClassifyMissingAPIKey(t *testing.T) {
	client := newTestClient(t, "")

	_, err := client.Classify(context.Background(), audioSubmission())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
}

func TestClassifyMissingAudio(t *testing.T) {
	client := newTestClient(t, "secret-key")

	sub := audioSubmission()
	sub.AudioData = nil

	_, err := client.Classify(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		category  errors.ErrorCategory
		retryable bool
	}{
		{"unauthorized", 401, errors.CategoryAuthorization, false},
		{"forbidden", 403, errors.CategoryAuthorization, false},
		{"not found", 404, errors.CategoryNotFound, false},
		{"rate limited", 429, errors.CategoryRetry, true},
		{"server error", 500, errors.CategoryHTTP, true},
		{"unprocessable", 422, errors.CategoryProviderResponse, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, "secret-key")
			httpmock.RegisterResponder("POST", testEndpoint,
				httpmock.NewStringResponder(tc.status, `{"error": "nope"}`))

			_, err := client.Classify(context.Background(), audioSubmission())
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, tc.category))
			assert.Equal(t, tc.retryable, errors.Retryable(err))
		})
	}
}

func TestClassifyMalformedResponse(t *testing.T) {
	client := newTestClient(t, "secret-key")

	httpmock.RegisterResponder("POST", testEndpoint,
		httpmock.NewStringResponder(200, `not json at all`))

	_, err := client.Classify(context.Background(), audioSubmission())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProviderResponse))
}
