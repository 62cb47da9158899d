// Package confidence implements the pure confidence model: Bayesian-style
// belief updates, strength classification, decay, trend analysis and status
// transitions. It performs no I/O.
package confidence

import (
	"github.com/haldanelabs/nightshift/internal/domain"
)

const (
	MinConfidence = 0.01
	MaxConfidence = 0.99

	MinEvidenceStrength = 0.1
	MaxEvidenceStrength = 1.0

	// Strength bands. Learnings classify as moderate earlier than beliefs.
	DefinitiveMin       = 0.85
	StrongMin           = 0.70
	ModerateBeliefMin   = 0.40
	ModerateLearningMin = 0.30

	// Status thresholds for the suggested-status and transition rules.
	InvalidateBelow = 0.10
	UncertainBelow  = 0.30
	RecoverAt       = 0.40

	// A posterior shift larger than this suggests re-evaluating dependents.
	ReEvaluateDelta = 0.10
)

// UpdateResult is the outcome of one Bayesian update.
type UpdateResult struct {
	Posterior        float64
	Delta            float64
	SuggestedStatus  domain.BeliefStatus
	ShouldReEvaluate bool
}

// Evidence is one observation applied during CombineEvidence.
type Evidence struct {
	Strength float64
	Supports bool
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp bounds a confidence value to [MinConfidence, MaxConfidence].
func Clamp(v float64) float64 {
	return clamp(v, MinConfidence, MaxConfidence)
}

// BayesianUpdate applies one piece of evidence to a prior confidence using an
// odds-ratio update. Supporting evidence multiplies the odds by 1+2·strength;
// contradicting evidence divides by the same factor.
func BayesianUpdate(prior, evidenceStrength float64, supports bool) UpdateResult {
	p := Clamp(prior)
	s := clamp(evidenceStrength, MinEvidenceStrength, MaxEvidenceStrength)

	odds := p / (1 - p)
	lr := 1 + 2*s
	if !supports {
		lr = 1 / (1 + 2*s)
	}
	newOdds := odds * lr
	posterior := Clamp(newOdds / (1 + newOdds))
	delta := posterior - p

	status := domain.BeliefActive
	switch {
	case posterior < InvalidateBelow:
		status = domain.BeliefInvalidated
	case posterior < UncertainBelow:
		status = domain.BeliefUncertain
	}

	return UpdateResult{
		Posterior:        posterior,
		Delta:            delta,
		SuggestedStatus:  status,
		ShouldReEvaluate: delta > ReEvaluateDelta || delta < -ReEvaluateDelta,
	}
}

// CombineEvidence left-folds BayesianUpdate over the evidence list in order.
// The fold is deliberately not associative or commutative: it mirrors
// sequential evidence arrival.
func CombineEvidence(prior float64, evidence []Evidence) float64 {
	conf := Clamp(prior)
	for _, e := range evidence {
		conf = BayesianUpdate(conf, e.Strength, e.Supports).Posterior
	}
	return conf
}

func classify(conf, moderateMin float64) domain.Strength {
	switch {
	case conf >= DefinitiveMin:
		return domain.StrengthDefinitive
	case conf >= StrongMin:
		return domain.StrengthStrong
	case conf >= moderateMin:
		return domain.StrengthModerate
	}
	return domain.StrengthWeak
}

// ClassifyLearning maps a learning's confidence to its strength band.
func ClassifyLearning(conf float64) domain.Strength {
	return classify(conf, ModerateLearningMin)
}

// ClassifyBelief maps a belief's confidence to its strength band.
func ClassifyBelief(conf float64) domain.Strength {
	return classify(conf, ModerateBeliefMin)
}

// Decay lowers a confidence by one decay step, flooring at MinConfidence.
func Decay(conf, decayRate float64) float64 {
	return Clamp(conf * (1 - decayRate))
}

// NextStatus applies the status transition rule to a belief's current state.
func NextStatus(current domain.BeliefStatus, conf float64, supporting, contradicting int) domain.BeliefStatus {
	if conf < InvalidateBelow && contradicting > supporting {
		return domain.BeliefInvalidated
	}
	if current == domain.BeliefActive && conf < UncertainBelow {
		return domain.BeliefUncertain
	}
	if current == domain.BeliefUncertain && conf >= RecoverAt {
		return domain.BeliefActive
	}
	return current
}
