package identify

import "github.com/fieldquest/fieldquest-go/internal/conf"

// Routing reasons recorded on decisions, useful for logs and metrics.
const (
	ReasonMetThreshold   = "met_threshold"
	ReasonBelowThreshold = "below_threshold"
	ReasonNoThreshold    = "no_threshold"
	ReasonNoConfidence   = "no_confidence"
	ReasonNotPersistable = "not_persistable"
)

// Thresholds maps each target to its auto-approval confidence cutoff.
// A target missing from the map never auto-approves.
type Thresholds map[Target]float64

// DefaultThresholds returns the built-in per-target cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TargetSpecies: 0.85,
		TargetBird:    0.75,
		TargetMacro:   0.70,
	}
}

// ThresholdsFromSettings builds the threshold table from configuration.
func ThresholdsFromSettings(s *conf.ThresholdSettings) Thresholds {
	if s == nil {
		return DefaultThresholds()
	}
	return Thresholds{
		TargetSpecies: s.Species,
		TargetBird:    s.Bird,
		TargetMacro:   s.Macro,
	}
}

// RouteDecision is the outcome of confidence routing for one result.
type RouteDecision struct {
	Status  Status
	Persist bool
	Reason  string
}

// Route decides what happens to a normalized result. Only ok-tagged results
// persist; error and no-match results are returned to the caller but never
// stored. A result with no confidence value can never meet a threshold and
// always lands in pending.
func Route(result NormalizedResult, thresholds Thresholds) RouteDecision {
	if result.Outcome != OutcomeOK {
		return RouteDecision{Status: StatusPending, Persist: false, Reason: ReasonNotPersistable}
	}
	if result.Confidence == nil {
		return RouteDecision{Status: StatusPending, Persist: true, Reason: ReasonNoConfidence}
	}
	threshold, ok := thresholds[result.Target]
	if !ok {
		return RouteDecision{Status: StatusPending, Persist: true, Reason: ReasonNoThreshold}
	}
	if *result.Confidence >= threshold {
		return RouteDecision{Status: StatusAuto, Persist: true, Reason: ReasonMetThreshold}
	}
	return RouteDecision{Status: StatusPending, Persist: true, Reason: ReasonBelowThreshold}
}
