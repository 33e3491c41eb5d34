// Package risk sizes approved candidates and enforces the account-level
// guards: circuit breaker, concurrency, spread, lot floor and margin.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/circuit"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/patterns"
)

// RejectReason classifies why an entry was refused. Rejections are
// expected outcomes, not errors.
type RejectReason string

const (
	ReasonNone           RejectReason = ""
	ReasonBreakerTripped RejectReason = "CIRCUIT_BREAKER"
	ReasonMaxPositions   RejectReason = "MAX_POSITIONS"
	ReasonSpreadTooWide  RejectReason = "SPREAD_TOO_WIDE"
	ReasonLotTooSmall    RejectReason = "LOT_TOO_SMALL"
	ReasonLowMargin      RejectReason = "LOW_FREE_MARGIN"
)

// Decision is the risk engine's verdict on one candidate.
type Decision struct {
	Approved   bool
	Reason     RejectReason
	Detail     string
	Lots       float64
	StopLoss   float64
	TakeProfit float64
	RiskPips   float64
	RewardPips float64
	RRRatio    float64
}

// extraStopBufferPips pads the stop when the pattern extreme forces it
// wider than the class default.
const extraStopBufferPips = 2.0

// Manager evaluates entries for one account.
type Manager struct {
	cfg     config.RiskConfig
	trading config.TradingConfig
	breaker *circuit.Breaker
	logger  zerolog.Logger
}

func NewManager(cfg config.RiskConfig, trading config.TradingConfig, breaker *circuit.Breaker, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		trading: trading,
		breaker: breaker,
		logger:  logger,
	}
}

// Evaluate runs the guard checks in order and sizes the trade. The first
// failed check decides the rejection reason.
func (m *Manager) Evaluate(cand patterns.Candidate, acct *broker.AccountInfo, quote *broker.Quote, openPositions int, tilt *TiltTracker, now time.Time) Decision {
	if ok, reason := m.breaker.CanTrade(now); !ok {
		return reject(ReasonBreakerTripped, reason)
	}
	if openPositions >= m.trading.MaxOpenPositions {
		return reject(ReasonMaxPositions,
			fmt.Sprintf("%d positions open, limit %d", openPositions, m.trading.MaxOpenPositions))
	}
	if spread := quote.SpreadPips(); spread > m.trading.MaxSpreadPips {
		return reject(ReasonSpreadTooWide,
			fmt.Sprintf("spread %.1f pips exceeds %.1f", spread, m.trading.MaxSpreadPips))
	}

	class := m.classFor(cand.Symbol)
	entry := quote.Ask
	if cand.Direction == broker.Sell {
		entry = quote.Bid
	}

	stopLoss, slPips := m.placeStop(cand, class, entry)
	lots := m.size(cand.Symbol, acct.Equity, slPips, entry, class, tilt)
	if lots < m.cfg.MinLotSize {
		return reject(ReasonLotTooSmall,
			fmt.Sprintf("computed %.2f lots under minimum %.2f", lots, m.cfg.MinLotSize))
	}
	if acct.FreeMargin < m.cfg.FreeMarginFloor {
		return reject(ReasonLowMargin,
			fmt.Sprintf("free margin %.2f under floor %.2f", acct.FreeMargin, m.cfg.FreeMarginFloor))
	}

	pip := market.PipSize(cand.Symbol)
	tpPips := class.TakeProfitPips
	takeProfit := entry + tpPips*pip
	if cand.Direction == broker.Sell {
		takeProfit = entry - tpPips*pip
	}

	d := Decision{
		Approved:   true,
		Lots:       lots,
		StopLoss:   round5(stopLoss),
		TakeProfit: round5(takeProfit),
		RiskPips:   slPips,
		RewardPips: tpPips,
	}
	if slPips > 0 {
		d.RRRatio = tpPips / slPips
	}
	m.logger.Debug().
		Str("symbol", cand.Symbol).
		Float64("lots", d.Lots).
		Float64("sl", d.StopLoss).
		Float64("tp", d.TakeProfit).
		Msg("Entry approved")
	return d
}

// size computes the dual-method lot: the equity ladder and the
// risk-capped lot, whichever is smaller, scaled by the anti-tilt factor
// and clamped to the class cap.
func (m *Manager) size(symbol string, equity, slPips, rate float64, class config.InstrumentClassConfig, tilt *TiltTracker) float64 {
	equityLots := equity / m.cfg.EquityUnit * m.cfg.LotPerEquityUnit

	riskLots := 0.0
	pipValue := market.PipDollarValue(symbol, rate)
	if slPips > 0 && pipValue > 0 {
		riskBudget := equity * m.cfg.MaxRiskPercent / 100
		riskLots = riskBudget / (slPips * pipValue)
	}

	lots := math.Min(equityLots, riskLots)
	if tilt != nil {
		lots *= tilt.SizeFactor()
	}

	if lots > class.MaxLotSize {
		lots = class.MaxLotSize
	}
	return math.Round(lots*100) / 100
}

// placeStop uses the class distance, widened past the pattern's
// invalidation extreme when the extreme sits farther out.
func (m *Manager) placeStop(cand patterns.Candidate, class config.InstrumentClassConfig, entry float64) (price, pips float64) {
	pip := market.PipSize(cand.Symbol)
	pips = class.StopLossPips

	if cand.StopExtreme > 0 {
		extremePips := math.Abs(entry-cand.StopExtreme) / pip
		wrongSide := (cand.Direction == broker.Buy && cand.StopExtreme >= entry) ||
			(cand.Direction == broker.Sell && cand.StopExtreme <= entry)
		if !wrongSide && extremePips+extraStopBufferPips > pips {
			pips = extremePips + extraStopBufferPips
		}
	}

	if cand.Direction == broker.Buy {
		price = entry - pips*pip
	} else {
		price = entry + pips*pip
	}
	return price, pips
}

func (m *Manager) classFor(symbol string) config.InstrumentClassConfig {
	if class, ok := m.cfg.Classes[market.InstrumentClass(symbol)]; ok {
		return class
	}
	// Unknown class falls back to the tightest table.
	return config.InstrumentClassConfig{StopLossPips: 20, TakeProfitPips: 80, MaxLotSize: 0.10}
}

func reject(reason RejectReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

func round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
