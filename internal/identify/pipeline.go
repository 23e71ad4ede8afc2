package identify

import (
	"context"
	"sync"
	"time"

	"github.com/fieldquest/fieldquest-go/internal/errors"
	"github.com/fieldquest/fieldquest-go/internal/observability/metrics"
	"github.com/fieldquest/fieldquest-go/internal/retry"
)

// Pipeline fans a submission out to every eligible provider concurrently and
// collects one normalized result per provider. Provider failures never
// escape: after retries are exhausted the failure is absorbed into an
// error-tagged result in the same slice.
type Pipeline struct {
	registry *Registry
	policy   retry.Policy
	timeout  time.Duration
	metrics  *metrics.PipelineMetrics
}

// NewPipeline builds a pipeline. timeout bounds each individual provider
// call attempt; zero disables the per-call deadline. metrics may be nil.
func NewPipeline(registry *Registry, policy retry.Policy, timeout time.Duration, m *metrics.PipelineMetrics) *Pipeline {
	return &Pipeline{
		registry: registry,
		policy:   policy,
		timeout:  timeout,
		metrics:  m,
	}
}

// Run executes the fan-out. Results are ordered by the submission's
// requested targets, then provider registration order, regardless of which
// provider finishes first. The returned slice always has one entry per
// planned provider call.
func (p *Pipeline) Run(ctx context.Context, sub *MediaSubmission) []NormalizedResult {
	plan := p.registry.Plan(sub.Targets, sub.Kind)
	results := make([]NormalizedResult, len(plan))

	var wg sync.WaitGroup
	for i, prov := range plan {
		wg.Add(1)
		go func(i int, prov Provider) {
			defer wg.Done()
			results[i] = p.callProvider(ctx, prov, sub)
		}(i, prov)
	}
	wg.Wait()

	return results
}

func (p *Pipeline) callProvider(ctx context.Context, prov Provider, sub *MediaSubmission) NormalizedResult {
	policy := p.policy
	policy.OnRetry = func(attempt int, err error) {
		p.metrics.RecordProviderRetry(prov.Name())
		logger.Warn("provider call retrying",
			"provider", prov.Name(),
			"attempt", attempt,
			"error", err)
	}

	start := time.Now()
	result, err := retry.Do(ctx, policy, func(ctx context.Context) (NormalizedResult, error) {
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return prov.Classify(callCtx, sub)
	})
	elapsed := time.Since(start)

	if err != nil {
		result = ErrorResult(prov.Name(), prov.Target(), errorReason(err))
		logger.Error("provider call failed",
			"provider", prov.Name(),
			"target", prov.Target(),
			"duration_ms", elapsed.Milliseconds(),
			"error", err)
	}

	p.metrics.RecordProviderCall(prov.Name(), string(result.Outcome), elapsed.Seconds())
	return result
}

// errorReason maps a terminal provider error to the short reason string
// carried on the error-tagged result. Raw error text stays in the logs.
func errorReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.IsCategory(err, errors.CategoryTimeout):
		return "provider timed out"
	case errors.Is(err, context.Canceled) || errors.IsCategory(err, errors.CategoryCancellation):
		return "request canceled"
	case errors.IsCategory(err, errors.CategoryConfiguration):
		return "provider not configured"
	case errors.IsCategory(err, errors.CategoryAuthorization):
		return "provider rejected credentials"
	case errors.IsCategory(err, errors.CategoryProviderResponse):
		return "provider returned an unusable response"
	case errors.IsCategory(err, errors.CategoryNetwork):
		return "provider unreachable"
	default:
		return "provider call failed"
	}
}
