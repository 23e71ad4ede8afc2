package identify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/retry"
)

// fakeProvider is a scriptable provider for pipeline tests.
type fakeProvider struct {
	name     string
	target   Target
	kind     MediaKind
	classify func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error)
	calls    atomic.Int32
}

func (p *fakeProvider) Name() string         { return p.name }
func (p *fakeProvider) Target() Target       { return p.target }
func (p *fakeProvider) MediaKind() MediaKind { return p.kind }

func (p *fakeProvider) Classify(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
	p.calls.Add(1)
	return p.classify(ctx, sub)
}

func okProvider(name string, target Target, label string, confidence float64) *fakeProvider {
	return &fakeProvider{
		name:   name,
		target: target,
		kind:   MediaImage,
		classify: func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
			return OKResult(name, target, label, Float64(confidence), nil), nil
		},
	}
}

func failingProvider(name string, target Target, err error) *fakeProvider {
	return &fakeProvider{
		name:   name,
		target: target,
		kind:   MediaImage,
		classify: func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
			return NormalizedResult{}, err
		},
	}
}

// ignoreFileLoggerGoroutine excludes the lumberjack background goroutine
// started by this package's file logger from leak verification.
func ignoreFileLoggerGoroutine() goleak.Option {
	return goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun")
}

func fastRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		MaxDelay:    time.Millisecond,
		Backoff:     retry.BackoffFixed,
	}
}

func TestPipelineRunOrderingIsDeterministic(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreFileLoggerGoroutine())

	// Declaration order within a target, requested-target order across targets.
	slow := &fakeProvider{
		name:   "slow-species",
		target: TargetSpecies,
		kind:   MediaImage,
		classify: func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
			time.Sleep(20 * time.Millisecond)
			return OKResult("slow-species", TargetSpecies, "first", Float64(0.9), nil), nil
		},
	}
	registry := NewRegistry(
		slow,
		okProvider("fast-species", TargetSpecies, "second", 0.8),
		okProvider("macro", TargetMacro, "third", 0.7),
	)
	pipeline := NewPipeline(registry, fastRetryPolicy(), 0, nil)

	sub := validImageSubmission()
	sub.Targets = []Target{TargetMacro, TargetSpecies}

	results := pipeline.Run(context.Background(), sub)
	require.Len(t, results, 3)
	assert.Equal(t, "macro", results[0].Provider)
	assert.Equal(t, "slow-species", results[1].Provider)
	assert.Equal(t, "fast-species", results[2].Provider)
}

func TestPipelineAbsorbsProviderFailures(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreFileLoggerGoroutine())

	netErr := errors.Newf("connection refused").
		Category(errors.CategoryNetwork).
		Component("identify").
		Build()

	failing := failingProvider("down", TargetSpecies, netErr)
	registry := NewRegistry(
		failing,
		okProvider("macro", TargetMacro, "Mayfly Nymph", 0.71),
	)
	pipeline := NewPipeline(registry, fastRetryPolicy(), 0, nil)

	sub := validImageSubmission()
	sub.Targets = []Target{TargetSpecies, TargetMacro}

	results := pipeline.Run(context.Background(), sub)
	require.Len(t, results, 2)

	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Equal(t, "down", results[0].Provider)
	assert.Equal(t, "provider unreachable", results[0].Reason)
	assert.Empty(t, results[0].Label)
	assert.Nil(t, results[0].Confidence)

	assert.Equal(t, OutcomeOK, results[1].Outcome)
	assert.Equal(t, "Mayfly Nymph", results[1].Label)

	// retryable failure consumed the full attempt budget
	assert.Equal(t, int32(2), failing.calls.Load())
}

func TestPipelineDoesNotRetryTerminalFailures(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreFileLoggerGoroutine())

	cfgErr := errors.Newf("client id missing").
		Category(errors.CategoryConfiguration).
		Component("identify").
		Build()

	failing := failingProvider("unconfigured", TargetSpecies, cfgErr)
	pipeline := NewPipeline(NewRegistry(failing), fastRetryPolicy(), 0, nil)

	results := pipeline.Run(context.Background(), validImageSubmission())
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Equal(t, "provider not configured", results[0].Reason)
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestPipelineAppliesPerCallTimeout(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreFileLoggerGoroutine())

	blocked := &fakeProvider{
		name:   "stuck",
		target: TargetSpecies,
		kind:   MediaImage,
		classify: func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
			<-ctx.Done()
			return NormalizedResult{}, ctx.Err()
		},
	}
	policy := fastRetryPolicy()
	policy.MaxAttempts = 1
	pipeline := NewPipeline(NewRegistry(blocked), policy, 10*time.Millisecond, nil)

	results := pipeline.Run(context.Background(), validImageSubmission())
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeError, results[0].Outcome)
	assert.Equal(t, "provider timed out", results[0].Reason)
}

func TestPipelineSkipsIneligiblePairings(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreFileLoggerGoroutine())

	bird := &fakeProvider{
		name:   "bird",
		target: TargetBird,
		kind:   MediaAudio,
		classify: func(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error) {
			return OKResult("bird", TargetBird, "Turdus migratorius", Float64(0.9), nil), nil
		},
	}
	registry := NewRegistry(bird, okProvider("species", TargetSpecies, "Quercus", 0.9))
	pipeline := NewPipeline(registry, fastRetryPolicy(), 0, nil)

	// image submission requesting bird and species: bird cannot be planned
	sub := validImageSubmission()
	sub.Targets = []Target{TargetBird, TargetSpecies}

	results := pipeline.Run(context.Background(), sub)
	require.Len(t, results, 1)
	assert.Equal(t, "species", results[0].Provider)
	assert.Equal(t, int32(0), bird.calls.Load())
}
