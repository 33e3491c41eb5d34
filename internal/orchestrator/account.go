package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/ai"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/circuit"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/gates"
	"forex-trading-agent/internal/market"
	"forex-trading-agent/internal/news"
	"forex-trading-agent/internal/patterns"
	"forex-trading-agent/internal/position"
	"forex-trading-agent/internal/risk"
	"forex-trading-agent/internal/signal"
)

// brokerCallTimeout bounds every venue call made from a scan cycle.
const brokerCallTimeout = 15 * time.Second

// Journal records opened trades. A nil journal is skipped.
type Journal interface {
	position.Journal
	RecordOpen(ctx context.Context, accountID string, trade OpenedTrade) error
}

// OpenedTrade is the journal row for an execution.
type OpenedTrade struct {
	Ticket     int64
	Symbol     string
	Direction  broker.Direction
	SignalType string
	Confidence float64
	Lots       float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Reason     string
	OpenedAt   time.Time
}

// Status is one account's health snapshot for the API.
type Status struct {
	AccountID         string    `json:"account_id"`
	Name              string    `json:"name"`
	Healthy           bool      `json:"healthy"`
	Paused            bool      `json:"paused"`
	LastCycle         time.Time `json:"last_cycle"`
	LastError         string    `json:"last_error,omitempty"`
	Balance           float64   `json:"balance"`
	Equity            float64   `json:"equity"`
	DailyPnL          float64   `json:"daily_pnl"`
	OpenPositions     int       `json:"open_positions"`
	BreakerTripped    bool      `json:"breaker_tripped"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	SizeFactor        float64   `json:"size_factor"`
}

// Engine runs the full decision pipeline for a single account: gates,
// detection, scoring, risk validation and execution. Each account gets
// its own engine with its own tilt tracker and circuit breaker, so one
// account's losses never throttle another's.
type Engine struct {
	accountID string
	name      string
	cfg       *config.Config
	venue     broker.Broker
	detector  *patterns.Detector
	confirmer *patterns.BasketConfirmer
	scorer    *signal.Scorer
	gates     *gates.Pipeline
	riskMgr   *risk.Manager
	tilt      *risk.TiltTracker
	breaker   *circuit.Breaker
	positions *position.Manager
	advisor   ai.Advisor
	bus       *events.Bus
	journal   Journal
	logger    zerolog.Logger

	mu        sync.Mutex
	paused    bool
	healthy   bool
	lastCycle time.Time
	lastError string
}

func NewEngine(acct config.AccountConfig, cfg *config.Config, venue broker.Broker, calendar news.Calendar, advisor ai.Advisor, bus *events.Bus, journal Journal, logger zerolog.Logger) *Engine {
	engineLog := logger.With().Str("account", acct.ID).Logger()

	breaker := circuit.NewBreaker(cfg.RiskConfig.MaxDailyLossPct)
	tilt := risk.NewTiltTracker(cfg.RiskConfig.Tilt)

	e := &Engine{
		accountID: acct.ID,
		name:      acct.Name,
		cfg:       cfg,
		venue:     venue,
		detector:  patterns.NewDetector(engineLog),
		confirmer: patterns.NewBasketConfirmer(1),
		scorer:    signal.NewScorer(cfg.TradingConfig),
		gates:     gates.NewPipeline(cfg.TradingConfig, calendar),
		riskMgr:   risk.NewManager(cfg.RiskConfig, cfg.TradingConfig, breaker, engineLog),
		tilt:      tilt,
		breaker:   breaker,
		advisor:   advisor,
		bus:       bus,
		journal:   journal,
		logger:    engineLog,
		healthy:   true,
	}
	e.positions = position.NewManager(acct.ID, cfg.PositionConfig, cfg.TradingConfig, venue, tilt, breaker, bus, journal, engineLog)

	breaker.OnTrip(func(reason string) {
		engineLog.Warn().Str("reason", reason).Msg("circuit breaker tripped")
		bus.Publish(events.Event{
			Type:      events.EventBreakerTripped,
			AccountID: acct.ID,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"reason": reason},
		})
	})
	breaker.OnReset(func() {
		engineLog.Info().Msg("circuit breaker reset for new trading day")
		bus.Publish(events.Event{
			Type:      events.EventBreakerReset,
			AccountID: acct.ID,
			Timestamp: time.Now(),
		})
	})

	return e
}

// Run drives the scan loop and the position manager until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.positions.Run(ctx)
	}()

	ticker := time.NewTicker(e.cfg.TradingConfig.ScanInterval())
	defer ticker.Stop()

	e.ScanCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			e.ScanCycle(ctx)
		}
	}
}

// ScanCycle evaluates every configured symbol once. A panic inside a
// cycle is recorded on the account status and swallowed so the other
// accounts keep trading.
func (e *Engine) ScanCycle(ctx context.Context) {
	e.scanCycleAt(ctx, time.Now().UTC())
}

func (e *Engine) scanCycleAt(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("scan cycle panic: %v", r)
			e.logger.Error().Str("panic", msg).Msg("recovered scan cycle panic")
			e.setError(msg)
		}
	}()

	if e.IsPaused() {
		return
	}

	acct, err := e.fetchAccount(ctx)
	if err != nil {
		e.handleVenueError("account info", err)
		return
	}
	e.breaker.Observe(acct.Balance, now)

	basket := e.fetchBasket(ctx)

	failed := false
	for _, symbol := range e.cfg.TradingConfig.Symbols {
		if err := e.scanSymbol(ctx, symbol, acct, basket, now, false); err != nil {
			e.handleVenueError(symbol, err)
			failed = true
		}
	}

	e.mu.Lock()
	e.lastCycle = now
	// A symbol-level venue error stays visible on the account status
	// until a cycle completes clean.
	if !failed {
		e.lastError = ""
		e.healthy = true
	}
	e.mu.Unlock()
}

// ForceScan evaluates a single symbol out of cycle. With force set the
// confidence threshold is skipped; every hard gate and risk check still
// applies.
func (e *Engine) ForceScan(ctx context.Context, symbol string, force bool) error {
	if e.IsPaused() {
		return fmt.Errorf("account %s is paused", e.accountID)
	}
	now := time.Now().UTC()
	acct, err := e.fetchAccount(ctx)
	if err != nil {
		return err
	}
	e.breaker.Observe(acct.Balance, now)
	return e.scanSymbol(ctx, symbol, acct, e.fetchBasket(ctx), now, force)
}

// CloseSymbol closes every open position in the symbol at market.
func (e *Engine) CloseSymbol(ctx context.Context, symbol string) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()
	open, err := e.venue.OpenPositions(callCtx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, p := range open {
		if p.Symbol != symbol {
			continue
		}
		if err := e.venue.ClosePosition(callCtx, p.Ticket); err != nil {
			e.logger.Error().Err(err).Int64("ticket", p.Ticket).Msg("manual close failed")
			continue
		}
		closed++
	}
	return closed, nil
}

func (e *Engine) scanSymbol(ctx context.Context, symbol string, acct *broker.AccountInfo, basket map[string][]market.Candle, now time.Time, force bool) error {
	if gate := e.gates.Check(symbol, e.detector.Trauma(symbol), now); !gate.Allowed {
		e.logger.Debug().Str("symbol", symbol).Str("gate", string(gate.Reason)).Str("detail", gate.Detail).Msg("symbol gated")
		return nil
	}

	snap, err := e.fetchSnapshot(ctx, symbol)
	if err != nil {
		return err
	}
	zones := market.BuildZones(symbol, snap.Candles, now)
	candidates := e.detector.Detect(snap, zones, now)

	if e.advisor != nil {
		if cand, ok, err := e.advisor.Advise(ctx, snap); err != nil {
			e.logger.Debug().Err(err).Str("symbol", symbol).Msg("advisory unavailable")
		} else if ok {
			cand.Time = now
			candidates = append(candidates, cand)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	open, err := e.venue.OpenPositions(callCtx)
	cancel()
	if err != nil {
		return err
	}

	quote := &broker.Quote{Symbol: symbol, Bid: snap.Bid, Ask: snap.Ask, Time: snap.Time}

	for _, cand := range candidates {
		confirmation := e.confirmer.Confirm(cand, basket)
		scored := e.scorer.Score(cand, confirmation, now)

		if !force && !e.scorer.Passes(scored) {
			e.logger.Debug().
				Str("symbol", symbol).
				Str("type", string(cand.Type)).
				Float64("confidence", scored.Confidence).
				Float64("threshold", e.scorer.Threshold(cand.Direction)).
				Msg("candidate under threshold")
			continue
		}

		if gate := e.gates.CheckDirection(symbol, cand.Direction, e.tilt, now); !gate.Allowed {
			e.bus.PublishSignalRejected(e.accountID, symbol, string(gate.Reason), gate.Detail)
			continue
		}

		decision := e.riskMgr.Evaluate(cand, acct, quote, len(open), e.tilt, now)
		if !decision.Approved {
			e.logger.Info().
				Str("symbol", symbol).
				Str("type", string(cand.Type)).
				Str("reason", string(decision.Reason)).
				Str("detail", decision.Detail).
				Msg("signal rejected by risk engine")
			e.bus.PublishSignalRejected(e.accountID, symbol, string(decision.Reason), decision.Detail)
			continue
		}

		e.bus.PublishSignal(e.accountID, symbol, string(cand.Type), string(cand.Direction), scored.Confidence)
		if err := e.execute(ctx, cand, scored, decision, now); err != nil {
			return err
		}
		// One execution per symbol per cycle.
		return nil
	}
	return nil
}

func (e *Engine) execute(ctx context.Context, cand patterns.Candidate, scored signal.Scored, decision risk.Decision, now time.Time) error {
	if e.cfg.TradingConfig.DryRun {
		e.logger.Info().
			Str("symbol", cand.Symbol).
			Str("direction", string(cand.Direction)).
			Str("type", string(cand.Type)).
			Float64("confidence", scored.Confidence).
			Float64("lots", decision.Lots).
			Msg("dry run, order not sent")
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()
	result, err := e.venue.OpenOrder(callCtx, broker.OrderRequest{
		Symbol:     cand.Symbol,
		Direction:  cand.Direction,
		Lots:       decision.Lots,
		StopLoss:   decision.StopLoss,
		TakeProfit: decision.TakeProfit,
		Comment:    string(cand.Type),
	})
	if err != nil {
		e.bus.PublishError(e.accountID, "execution", "order rejected", err)
		return err
	}

	e.logger.Info().
		Str("symbol", cand.Symbol).
		Str("direction", string(cand.Direction)).
		Str("type", string(cand.Type)).
		Int64("ticket", result.Ticket).
		Float64("lots", decision.Lots).
		Float64("entry", result.FillPrice).
		Float64("stop", decision.StopLoss).
		Float64("target", decision.TakeProfit).
		Float64("confidence", scored.Confidence).
		Msg("position opened")

	e.bus.PublishTradeOpened(e.accountID, cand.Symbol, string(cand.Direction), result.Ticket,
		decision.Lots, result.FillPrice, decision.StopLoss, decision.TakeProfit)

	if e.journal != nil {
		trade := OpenedTrade{
			Ticket:     result.Ticket,
			Symbol:     cand.Symbol,
			Direction:  cand.Direction,
			SignalType: string(cand.Type),
			Confidence: scored.Confidence,
			Lots:       decision.Lots,
			Entry:      result.FillPrice,
			StopLoss:   decision.StopLoss,
			TakeProfit: decision.TakeProfit,
			Reason:     cand.Reason,
			OpenedAt:   now,
		}
		if err := e.journal.RecordOpen(ctx, e.accountID, trade); err != nil {
			e.logger.Error().Err(err).Int64("ticket", result.Ticket).Msg("journal write failed")
		}
	}
	return nil
}

func (e *Engine) fetchAccount(ctx context.Context) (*broker.AccountInfo, error) {
	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()
	return e.venue.AccountInfo(callCtx)
}

func (e *Engine) fetchSnapshot(ctx context.Context, symbol string) (market.Snapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()

	candles, err := e.venue.Candles(callCtx, symbol, e.cfg.TradingConfig.Timeframe, e.cfg.TradingConfig.CandleCount)
	if err != nil {
		return market.Snapshot{}, err
	}
	quote, err := e.venue.Quote(callCtx, symbol)
	if err != nil {
		return market.Snapshot{}, err
	}
	return market.Snapshot{
		Symbol:    symbol,
		Timeframe: e.cfg.TradingConfig.Timeframe,
		Candles:   candles,
		Bid:       quote.Bid,
		Ask:       quote.Ask,
		Time:      quote.Time,
	}, nil
}

// fetchBasket pulls recent candles for the USD basket pairs. Pairs that
// fail to load are simply absent; the confirmer treats missing pairs as
// non-voting.
func (e *Engine) fetchBasket(ctx context.Context) map[string][]market.Candle {
	basket := make(map[string][]market.Candle, len(patterns.BasketPairs))
	for _, pair := range patterns.BasketPairs {
		callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
		candles, err := e.venue.Candles(callCtx, pair, e.cfg.TradingConfig.Timeframe, 10)
		cancel()
		if err != nil {
			e.logger.Debug().Err(err).Str("pair", pair).Msg("basket pair unavailable")
			continue
		}
		basket[pair] = candles
	}
	return basket
}

func (e *Engine) handleVenueError(scope string, err error) {
	e.setError(fmt.Sprintf("%s: %v", scope, err))
	if errors.Is(err, broker.ErrAuth) {
		e.logger.Error().Err(err).Msg("authentication failed, pausing account")
		e.SetPaused(true)
		e.bus.Publish(events.Event{
			Type:      events.EventAccountPaused,
			AccountID: e.accountID,
			Timestamp: time.Now(),
			Data:      map[string]interface{}{"reason": err.Error()},
		})
		return
	}
	e.logger.Warn().Err(err).Str("scope", scope).Msg("venue call failed")
}

func (e *Engine) setError(msg string) {
	e.mu.Lock()
	e.lastError = msg
	e.healthy = false
	e.mu.Unlock()
}

// SetPaused stops new entries. Open positions keep being managed.
func (e *Engine) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Status reports the account snapshot. Balance, equity and the open
// count are fetched fresh from the venue under a bounded timeout; the
// rest comes from local state.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	st := Status{
		AccountID:         e.accountID,
		Name:              e.name,
		Healthy:           e.healthy,
		Paused:            e.paused,
		LastCycle:         e.lastCycle,
		LastError:         e.lastError,
		BreakerTripped:    e.breaker.Tripped(),
		DailyPnL:          e.breaker.DailyPnL(),
		ConsecutiveLosses: e.tilt.ConsecutiveLosses(),
		SizeFactor:        e.tilt.SizeFactor(),
	}
	e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, brokerCallTimeout)
	defer cancel()
	if acct, err := e.venue.AccountInfo(callCtx); err == nil {
		st.Balance = acct.Balance
		st.Equity = acct.Equity
	}
	if open, err := e.venue.OpenPositions(callCtx); err == nil {
		st.OpenPositions = len(open)
	}
	return st
}

// RiskSummary exposes the risk throttle internals for the API.
func (e *Engine) RiskSummary() map[string]interface{} {
	return map[string]interface{}{
		"account_id":         e.accountID,
		"breaker_tripped":    e.breaker.Tripped(),
		"daily_pnl":          e.breaker.DailyPnL(),
		"consecutive_losses": e.tilt.ConsecutiveLosses(),
		"size_factor":        e.tilt.SizeFactor(),
		"max_daily_loss_pct": e.cfg.RiskConfig.MaxDailyLossPct,
	}
}
