package identify

import (
	"context"
)

// Provider adapts one external classification service into the pipeline's
// normalized shape. Implementations return a typed error for transport and
// protocol failures; the fan-out orchestrator decides whether to retry and
// converts the final failure into an error-tagged result, so a provider fault
// can never corrupt a sibling's contribution.
type Provider interface {
	// Name identifies the provider in results, records and logs.
	Name() string
	// Target is the classification category this provider serves.
	Target() Target
	// MediaKind is the payload kind this provider consumes.
	MediaKind() MediaKind
	// Classify runs one classification call for the submission.
	Classify(ctx context.Context, sub *MediaSubmission) (NormalizedResult, error)
}

// Registry holds the configured providers in declaration order. The order is
// load-bearing: fan-out output is sorted by (target, provider) declaration
// order, not by completion time, so a given registry always yields
// deterministic result ordering.
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry with the given providers in declaration order.
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{providers: providers}
}

// Register appends a provider. Later registrations sort after earlier ones
// within the same target.
func (r *Registry) Register(p Provider) {
	r.providers = append(r.providers, p)
}

// Providers returns all registered providers in declaration order.
func (r *Registry) Providers() []Provider {
	return r.providers
}

// Plan selects the providers to invoke for the requested targets and media
// kind, ordered by requested-target order then provider declaration order.
// A requested target with no eligible provider for the submission's media
// kind contributes nothing to the plan; input validation has already rejected
// submissions whose payload cannot serve any requested target.
func (r *Registry) Plan(targets []Target, kind MediaKind) []Provider {
	var plan []Provider
	for _, target := range targets {
		for _, p := range r.providers {
			if p.Target() == target && p.MediaKind() == kind {
				plan = append(plan, p)
			}
		}
	}
	return plan
}
