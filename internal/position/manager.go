// Package position runs the per-account management loop over open
// trades: breakeven locks, trailing stops, stale exits, the Friday
// flatten and the circuit-breaker flatten.
package position

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/circuit"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/risk"
)

// Journal records closed trades. A nil journal is skipped.
type Journal interface {
	RecordClose(ctx context.Context, accountID string, deal broker.Deal) error
}

// Manager owns the protective-stop state for one account. It is driven
// by a single goroutine; broker calls never run under internal locks
// because there are none to hold.
type Manager struct {
	accountID string
	cfg       config.PositionConfig
	trading   config.TradingConfig
	venue     broker.Broker
	tilt      *risk.TiltTracker
	breaker   *circuit.Breaker
	bus       *events.Bus
	journal   Journal
	logger    zerolog.Logger

	breakevenDone map[int64]bool
	trailStop     map[int64]float64
	dealSync      time.Time
	dealsSeen     map[int64]time.Time
}

// dealSeenTTL bounds the dedupe set. It must outlast the refetch
// overlap in syncClosedDeals by a wide margin.
const dealSeenTTL = 10 * time.Minute

func NewManager(accountID string, cfg config.PositionConfig, trading config.TradingConfig, venue broker.Broker, tilt *risk.TiltTracker, breaker *circuit.Breaker, bus *events.Bus, journal Journal, logger zerolog.Logger) *Manager {
	return &Manager{
		accountID:     accountID,
		cfg:           cfg,
		trading:       trading,
		venue:         venue,
		tilt:          tilt,
		breaker:       breaker,
		bus:           bus,
		journal:       journal,
		logger:        logger,
		breakevenDone: make(map[int64]bool),
		trailStop:     make(map[int64]float64),
		dealSync:      time.Now().UTC(),
		dealsSeen:     make(map[int64]time.Time),
	}
}

// Run ticks the manager until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick runs one management pass. Failed broker calls are logged and the
// work is retried on the next tick; every mutation is idempotent.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	m.syncClosedDeals(ctx, now)

	positions, err := m.venue.OpenPositions(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Position fetch failed, retrying next tick")
		return
	}

	if m.shouldFlatten(now) {
		m.flatten(ctx, positions)
		m.cleanup(positions)
		return
	}

	for _, p := range positions {
		quote, err := m.venue.Quote(ctx, p.Symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("Quote fetch failed")
			continue
		}
		m.manage(ctx, p, quote, now)
	}
	m.cleanup(positions)
}

// shouldFlatten reports whether every position must come off: past the
// Friday cutoff, or the daily circuit breaker has tripped.
func (m *Manager) shouldFlatten(now time.Time) bool {
	if m.breaker != nil && m.breaker.Tripped() {
		return true
	}
	return now.UTC().Weekday() == time.Friday && now.UTC().Hour() >= m.trading.FridayCutoffHour
}

func (m *Manager) flatten(ctx context.Context, positions []broker.Position) {
	for _, p := range positions {
		if err := m.venue.ClosePosition(ctx, p.Ticket); err != nil {
			m.logger.Warn().Err(err).Int64("ticket", p.Ticket).Msg("Flatten close failed, retrying next tick")
			continue
		}
		m.logger.Info().Int64("ticket", p.Ticket).Str("symbol", p.Symbol).Msg("Position flattened")
	}
}

func (m *Manager) manage(ctx context.Context, p broker.Position, quote *broker.Quote, now time.Time) {
	pips := m.profitPips(p, quote)

	if m.cfg.StaleAfter() > 0 && pips < 0 && now.Sub(p.OpenedAt) > m.cfg.StaleAfter() {
		if err := m.venue.ClosePosition(ctx, p.Ticket); err != nil {
			m.logger.Warn().Err(err).Int64("ticket", p.Ticket).Msg("Stale close failed")
		} else {
			m.logger.Info().Int64("ticket", p.Ticket).Float64("pips", pips).Msg("Stale losing position closed")
		}
		return
	}

	if !m.breakevenDone[p.Ticket] && pips >= m.cfg.BreakevenTriggerPips {
		m.applyBreakeven(ctx, p)
	}
	if pips >= m.cfg.TrailingStartPips {
		m.applyTrailing(ctx, p, quote)
	}
}

// profitPips measures favorable movement at the closing side of the
// book: a buy exits at bid, a sell at ask.
func (m *Manager) profitPips(p broker.Position, quote *broker.Quote) float64 {
	pip := market.PipSize(p.Symbol)
	if p.Direction == broker.Buy {
		return (quote.Bid - p.OpenPrice) / pip
	}
	return (p.OpenPrice - quote.Ask) / pip
}

// applyBreakeven moves the stop to entry plus a small lock, once per
// position. The flag is only set after the venue accepts the change.
func (m *Manager) applyBreakeven(ctx context.Context, p broker.Position) {
	pip := market.PipSize(p.Symbol)
	newStop := p.OpenPrice + m.cfg.BreakevenLockPips*pip
	if p.Direction == broker.Sell {
		newStop = p.OpenPrice - m.cfg.BreakevenLockPips*pip
	}
	if !improves(p, newStop) {
		m.breakevenDone[p.Ticket] = true
		return
	}

	if err := m.venue.ModifyStops(ctx, p.Ticket, newStop, 0); err != nil {
		m.logger.Warn().Err(err).Int64("ticket", p.Ticket).Msg("Breakeven modify failed, retrying next tick")
		return
	}
	m.breakevenDone[p.Ticket] = true
	m.logger.Info().Int64("ticket", p.Ticket).Float64("stop", newStop).Msg("Breakeven applied")
	if m.bus != nil {
		m.bus.PublishStopMoved(m.accountID, p.Symbol, "breakeven", p.Ticket, newStop)
	}
}

// applyTrailing ratchets the stop behind price in fixed steps. The stop
// only ever tightens; a pullback never loosens it.
func (m *Manager) applyTrailing(ctx context.Context, p broker.Position, quote *broker.Quote) {
	pip := market.PipSize(p.Symbol)

	var candidate float64
	if p.Direction == broker.Buy {
		candidate = quote.Bid - m.cfg.TrailingStepPips*pip
	} else {
		candidate = quote.Ask + m.cfg.TrailingStepPips*pip
	}

	prev, trailed := m.trailStop[p.Ticket]
	if trailed && !tighter(p.Direction, candidate, prev) {
		return
	}
	if !improves(p, candidate) {
		return
	}

	if err := m.venue.ModifyStops(ctx, p.Ticket, candidate, 0); err != nil {
		m.logger.Warn().Err(err).Int64("ticket", p.Ticket).Msg("Trailing modify failed, retrying next tick")
		return
	}
	m.trailStop[p.Ticket] = candidate
	m.logger.Debug().Int64("ticket", p.Ticket).Float64("stop", candidate).Msg("Trailing stop advanced")
	if m.bus != nil {
		m.bus.PublishStopMoved(m.accountID, p.Symbol, "trailing", p.Ticket, candidate)
	}
}

// syncClosedDeals pulls deals closed since the last pass into the tilt
// tracker, the breaker and the journal. The fetch window overlaps the
// previous pass by a minute so a deal landing mid-tick is never missed;
// tickets already processed are dropped here so the overlap can never
// double-count a deal into the breaker or the journal.
func (m *Manager) syncClosedDeals(ctx context.Context, now time.Time) {
	since := m.dealSync.Add(-time.Minute)
	deals, err := m.venue.ClosedDeals(ctx, since)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Deal sync failed, retrying next tick")
		return
	}
	m.dealSync = now

	for ticket, seenAt := range m.dealsSeen {
		if now.Sub(seenAt) > dealSeenTTL {
			delete(m.dealsSeen, ticket)
		}
	}

	for _, d := range deals {
		if _, dup := m.dealsSeen[d.Ticket]; dup {
			continue
		}
		m.dealsSeen[d.Ticket] = now

		if m.tilt != nil {
			m.tilt.RecordClose(d)
		}
		if m.breaker != nil {
			m.breaker.RecordProfit(d.Profit, now)
		}
		if m.journal != nil {
			if err := m.journal.RecordClose(ctx, m.accountID, d); err != nil {
				m.logger.Warn().Err(err).Int64("ticket", d.Ticket).Msg("Journal write failed")
			}
		}
		if m.bus != nil {
			m.bus.PublishTradeClosed(m.accountID, d.Symbol, string(d.Direction), d.Ticket, d.Profit)
		}
	}
}

// cleanup drops tracking entries for tickets no longer open.
func (m *Manager) cleanup(open []broker.Position) {
	alive := make(map[int64]bool, len(open))
	for _, p := range open {
		alive[p.Ticket] = true
	}
	for ticket := range m.breakevenDone {
		if !alive[ticket] {
			delete(m.breakevenDone, ticket)
		}
	}
	for ticket := range m.trailStop {
		if !alive[ticket] {
			delete(m.trailStop, ticket)
		}
	}
}

// improves reports whether newStop protects more profit than the
// position's current stop.
func improves(p broker.Position, newStop float64) bool {
	if p.StopLoss <= 0 {
		return true
	}
	return tighter(p.Direction, newStop, p.StopLoss)
}

func tighter(dir broker.Direction, a, b float64) bool {
	if dir == broker.Buy {
		return a > b
	}
	return a < b
}
