// Package patterns implements the manipulation-pattern detectors. Each
// detector studies one setup family and emits at most one candidate per
// scan; the engine keeps the highest-priority candidate per symbol.
package patterns

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

// SignalType identifies the setup family that produced a candidate.
type SignalType string

const (
	WedgeReversal    SignalType = "WEDGE_REVERSAL"
	TraumaReversal   SignalType = "TRAUMA_REVERSAL"
	MidweekReversal  SignalType = "MIDWEEK_REVERSAL"
	AIAdvisory       SignalType = "AI_ADVISORY"
	CandleExhaustion SignalType = "CANDLE_EXHAUSTION"
	LiquiditySweep   SignalType = "LIQUIDITY_SWEEP"
	MomentumReversal SignalType = "MOMENTUM_REVERSAL"
)

// BaseScore ranks setup families by structural reliability. It is the
// type factor in the confidence blend and the tie-breaker when several
// detectors fire on the same scan.
func (s SignalType) BaseScore() float64 {
	switch s {
	case WedgeReversal:
		return 1.00
	case TraumaReversal:
		return 0.95
	case MidweekReversal:
		return 0.90
	case AIAdvisory:
		return 0.85
	case CandleExhaustion:
		return 0.60
	case LiquiditySweep:
		return 0.55
	case MomentumReversal:
		return 0.40
	default:
		return 0
	}
}

// Candidate is one proposed trade before scoring and risk evaluation.
// StopExtreme is the pattern's invalidation price; the risk engine may
// place the stop farther but never closer.
type Candidate struct {
	ID            string
	Symbol        string
	Direction     broker.Direction
	Type          SignalType
	Entry         float64
	StopExtreme   float64
	TargetLevel   float64
	CandleQuality float64 // 0-1, candle factor in the confidence blend
	Reason        string
	Time          time.Time
}

// Detector runs every setup family over one market snapshot. The wedge,
// trauma and midweek detectors are stateful per symbol; Detector owns
// that state and is confined to one account's scan goroutine.
type Detector struct {
	logger zerolog.Logger

	wedges   map[string]*WedgeTracker
	traumas  map[string]*TraumaTracker
	midweek  map[string]*MidweekTracker
	scanner  *CandleScanner
	momentum *MomentumDetector
}

func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{
		logger:   logger,
		wedges:   make(map[string]*WedgeTracker),
		traumas:  make(map[string]*TraumaTracker),
		midweek:  make(map[string]*MidweekTracker),
		scanner:  NewCandleScanner(),
		momentum: NewMomentumDetector(),
	}
}

// Trauma returns the god-candle tracker for a symbol, creating it on
// first use. The gate pipeline shares this state with detection.
func (d *Detector) Trauma(symbol string) *TraumaTracker {
	t, ok := d.traumas[symbol]
	if !ok {
		t = NewTraumaTracker()
		d.traumas[symbol] = t
	}
	return t
}

// Detect runs all detectors over the snapshot and returns the candidates
// found, highest base score first. Zones feed the sweep and momentum
// detectors; now drives the session-aware detectors.
func (d *Detector) Detect(snap market.Snapshot, zones []market.Zone, now time.Time) []Candidate {
	var out []Candidate

	wedge, ok := d.wedges[snap.Symbol]
	if !ok {
		wedge = NewWedgeTracker()
		d.wedges[snap.Symbol] = wedge
	}
	if c, found := wedge.Update(snap, now); found {
		out = append(out, c)
	}

	trauma := d.Trauma(snap.Symbol)
	if c, found := trauma.Update(snap, now); found {
		out = append(out, c)
	}

	mid, ok := d.midweek[snap.Symbol]
	if !ok {
		mid = NewMidweekTracker()
		d.midweek[snap.Symbol] = mid
	}
	if c, found := mid.Update(snap, now); found {
		out = append(out, c)
	}

	if c, found := d.scanner.Scan(snap); found {
		out = append(out, c)
	}

	if c, found := DetectSweepReversal(snap, zones); found {
		out = append(out, c)
	}

	if c, found := d.momentum.Detect(snap, zones, now); found {
		out = append(out, c)
	}

	sortByPriority(out)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		if out[i].Time.IsZero() {
			out[i].Time = now
		}
	}

	if len(out) > 0 {
		best := out[0]
		d.logger.Debug().
			Str("symbol", snap.Symbol).
			Str("type", string(best.Type)).
			Str("direction", string(best.Direction)).
			Msg("Pattern candidates found")
	}
	return out
}

func sortByPriority(cands []Candidate) {
	// Insertion sort keeps detector emission order stable within equal scores.
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].Type.BaseScore() > cands[j-1].Type.BaseScore(); j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
}
