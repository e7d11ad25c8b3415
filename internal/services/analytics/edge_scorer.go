package analytics

import (
	"math"
	"time"

	"CardSignals/internal/domain/models"
	"CardSignals/pkg/util"
)

// Weights of the confidence model.
type Weights struct {
	Edge       float64
	Comps      float64
	Volatility float64
	Freshness  float64
}

// Guardrails are data-quality gates a listing must pass to be scored.
type Guardrails struct {
	MinComps        int
	MaxFreshDays    int
	MaxVolatilityBp int64
	MinPriceCents   int64
}

func DefaultWeights() Weights {
	return Weights{Edge: 0.6, Comps: 0.3, Volatility: 0.05, Freshness: 0.05}
}

func DefaultGuardrails() Guardrails {
	return Guardrails{MinComps: 3, MaxFreshDays: 14, MaxVolatilityBp: 1200, MinPriceCents: 200}
}

// Evaluation is the result of scoring one listing against a snapshot.
type Evaluation struct {
	EdgeBp     int64
	Confidence float64
	Kind       models.SignalKind
	FreshDays  int
	AskCents   int64
	// Passed is false when a guardrail rejected the listing; the other
	// fields are then informational only.
	Passed bool
}

// EdgeScorer is the heuristic listing scorer.
type EdgeScorer struct {
	weights Weights
	guards  Guardrails
}

func NewEdgeScorer(w Weights, g Guardrails) *EdgeScorer {
	return &EdgeScorer{weights: w, guards: g}
}

func (s *EdgeScorer) Guardrails() Guardrails { return s.guards }

// Evaluate scores a listing against the fair value carried by snap.
func (s *EdgeScorer) Evaluate(snap models.FeatureSnapshot, l models.Listing, now time.Time) Evaluation {
	ask := l.AskCents()
	fresh := util.WholeDaysBetween(l.SeenAt, now)
	ev := Evaluation{AskCents: ask, FreshDays: fresh}

	if snap.Volume < s.guards.MinComps ||
		fresh > s.guards.MaxFreshDays ||
		snap.VolatilityBp > s.guards.MaxVolatilityBp ||
		ask < s.guards.MinPriceCents {
		return ev
	}

	ev.Passed = true
	ev.EdgeBp = EdgeBp(snap.MedianCents, ask)
	ev.Confidence = s.Confidence(ev.EdgeBp, snap.Volume, snap.VolatilityBp, fresh)
	ev.Kind = models.SignalWatch
	if ev.EdgeBp > 0 {
		ev.Kind = models.SignalUndervalued
	}
	return ev
}

// Confidence maps the weighted raw score through a logistic curve into [0, 1].
func (s *EdgeScorer) Confidence(edgeBp int64, comps int, volBp int64, freshDays int) float64 {
	raw := s.weights.Edge*(float64(edgeBp)/100) +
		s.weights.Comps*math.Log(float64(comps)+1) -
		s.weights.Volatility*(float64(volBp)/100) -
		s.weights.Freshness*float64(freshDays)
	return util.Clamp(sigmoid(raw), 0, 1)
}

// EdgeBp is the discount of ask relative to fair, in basis points.
func EdgeBp(fairCents, askCents int64) int64 {
	if fairCents == 0 {
		return 0
	}
	return int64(util.RoundHalfUp(float64(fairCents-askCents) / float64(fairCents) * 10000))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
