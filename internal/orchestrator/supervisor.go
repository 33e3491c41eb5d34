package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/ai"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/events"
	"forex-trading-agent/internal/news"
)

// Supervisor runs one Engine per configured account. Accounts are fully
// isolated from each other: separate broker clients, separate breakers,
// separate tilt state. The supervisor only fans work out and collects
// status back in.
type Supervisor struct {
	engines map[string]*Engine
	order   []string
	bus     *events.Bus
	logger  zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// BrokerFactory builds the venue client for one account.
type BrokerFactory func(acct config.AccountConfig) broker.Broker

func NewSupervisor(cfg *config.Config, factory BrokerFactory, calendar news.Calendar, advisor ai.Advisor, bus *events.Bus, journal Journal, logger zerolog.Logger) *Supervisor {
	s := &Supervisor{
		engines: make(map[string]*Engine, len(cfg.Accounts)),
		bus:     bus,
		logger:  logger.With().Str("component", "supervisor").Logger(),
	}
	for _, acct := range cfg.Accounts {
		venue := factory(acct)
		s.engines[acct.ID] = NewEngine(acct, cfg, venue, calendar, advisor, bus, journal, logger)
		s.order = append(s.order, acct.ID)
	}
	return s
}

// Start launches every account engine. Safe to call once; a second call
// while running is an error.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("supervisor already running")
	}
	if len(s.engines) == 0 {
		return fmt.Errorf("no accounts configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for id, engine := range s.engines {
		s.wg.Add(1)
		go func(id string, e *Engine) {
			defer s.wg.Done()
			e.Run(runCtx)
		}(id, engine)
		s.logger.Info().Str("account", id).Msg("account engine started")
	}

	s.bus.Publish(events.Event{
		Type:      events.EventEngineStarted,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"accounts": len(s.engines)},
	})
	return nil
}

// Stop cancels the run context and waits for every engine to drain.
// In-flight broker calls finish; no new ones start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.bus.Publish(events.Event{Type: events.EventEngineStopped, Timestamp: time.Now()})
	s.logger.Info().Msg("all account engines stopped")
}

func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status reports every account in configuration order.
func (s *Supervisor) Status(ctx context.Context) []Status {
	statuses := make([]Status, 0, len(s.order))
	for _, id := range s.order {
		statuses = append(statuses, s.engines[id].Status(ctx))
	}
	return statuses
}

// Engine returns the engine for one account, or nil.
func (s *Supervisor) Engine(accountID string) *Engine {
	return s.engines[accountID]
}

// ForceScan evaluates one symbol on every account, out of cycle. The
// force flag skips the confidence threshold but no risk check.
func (s *Supervisor) ForceScan(ctx context.Context, symbol string, force bool) map[string]string {
	results := make(map[string]string, len(s.order))
	for _, id := range s.order {
		if err := s.engines[id].ForceScan(ctx, symbol, force); err != nil {
			results[id] = err.Error()
		} else {
			results[id] = "ok"
		}
	}
	return results
}

// CloseSymbol flattens the symbol on every account.
func (s *Supervisor) CloseSymbol(ctx context.Context, symbol string) map[string]int {
	closed := make(map[string]int, len(s.order))
	for _, id := range s.order {
		n, err := s.engines[id].CloseSymbol(ctx, symbol)
		if err != nil {
			s.logger.Error().Err(err).Str("account", id).Str("symbol", symbol).Msg("close failed")
		}
		closed[id] = n
	}
	return closed
}
