// Package signal blends a pattern candidate's evidence into a single
// execution confidence and applies the asymmetric entry thresholds.
package signal

import (
	"math"
	"time"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/patterns"
)

// Blend weights. They sum to 1 so confidence stays in [0,1].
const (
	weightType    = 0.30
	weightSession = 0.20
	weightAct     = 0.15
	weightCandle  = 0.20
	weightBasket  = 0.15
)

// Scored is a candidate with its final confidence attached.
type Scored struct {
	patterns.Candidate
	Confidence float64
	Breakdown  Breakdown
}

// Breakdown exposes the individual factors for logging and the API.
type Breakdown struct {
	Type    float64 `json:"type"`
	Session float64 `json:"session"`
	Act     float64 `json:"act"`
	Candle  float64 `json:"candle"`
	Basket  float64 `json:"basket"`
}

// Scorer computes confidences and decides whether they clear the entry
// thresholds. Buys carry a higher bar than sells: upside manipulation
// resolves less cleanly than downside.
type Scorer struct {
	minConfidence float64
	buyThreshold  float64
}

func NewScorer(cfg config.TradingConfig) *Scorer {
	buy := cfg.MinConfidence + cfg.BuyBias
	if cfg.MaxBuyThreshold > 0 && buy > cfg.MaxBuyThreshold {
		buy = cfg.MaxBuyThreshold
	}
	return &Scorer{
		minConfidence: cfg.MinConfidence,
		buyThreshold:  buy,
	}
}

// Score blends the candidate's factors at the given instant.
func (s *Scorer) Score(cand patterns.Candidate, basket patterns.BasketConfirmation, now time.Time) Scored {
	b := Breakdown{
		Type:    cand.Type.BaseScore(),
		Session: sessionScore(market.PhaseAt(now)),
		Act:     actScore(market.ActAt(now)),
		Candle:  clamp01(cand.CandleQuality),
		Basket:  basketScore(basket),
	}

	conf := weightType*b.Type +
		weightSession*b.Session +
		weightAct*b.Act +
		weightCandle*b.Candle +
		weightBasket*b.Basket
	conf = math.Round(clamp01(conf)*1000) / 1000

	return Scored{Candidate: cand, Confidence: conf, Breakdown: b}
}

// Threshold returns the execution threshold for a direction.
func (s *Scorer) Threshold(dir broker.Direction) float64 {
	if dir == broker.Buy {
		return s.buyThreshold
	}
	return s.minConfidence
}

// Passes reports whether the scored candidate clears its directional
// threshold.
func (s *Scorer) Passes(sc Scored) bool {
	return sc.Confidence >= s.Threshold(sc.Direction)
}

func sessionScore(phase market.SessionPhase) float64 {
	switch phase {
	case market.PhaseSolution:
		return 1.0
	case market.PhaseReaction:
		return 0.6
	case market.PhaseAccumulation:
		return 0.3
	default:
		return 0.15
	}
}

func actScore(act market.WeeklyAct) float64 {
	switch act {
	case market.ActReversal:
		return 1.0
	case market.ActDistribution:
		return 0.9
	case market.ActAccumulation:
		return 0.7
	case market.ActEpilogue:
		return 0.4
	default:
		return 0.3
	}
}

func basketScore(b patterns.BasketConfirmation) float64 {
	if !b.Confirmed {
		return 0.2
	}
	return clamp01(b.Confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
