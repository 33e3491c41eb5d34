// Package store keeps per-account risk state in Redis so a restart does
// not reset the anti-tilt throttle or the daily-loss picture. When Redis
// is unavailable it degrades to an in-memory cache; trading continues.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forex-trading-agent/config"
)

const (
	// riskKeyPrefix is the key format forex:risk:{accountID}.
	riskKeyPrefix = "forex:risk"

	// riskStateTTL outlives a weekend so Monday sees Friday's state.
	riskStateTTL = 72 * time.Hour
)

// RiskState is the snapshot persisted per account.
type RiskState struct {
	AccountID         string    `json:"account_id"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	SizeFactor        float64   `json:"size_factor"`
	DailyPnL          float64   `json:"daily_pnl"`
	BreakerTripped    bool      `json:"breaker_tripped"`
	SavedAt           time.Time `json:"saved_at"`
}

// Store is the Redis-backed snapshot store with in-memory fallback.
type Store struct {
	client    *redis.Client
	logger    zerolog.Logger
	fallback  map[string]RiskState
	mu        sync.RWMutex
	available atomic.Bool
}

func NewStore(cfg config.RedisConfig, logger zerolog.Logger) *Store {
	s := &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		}),
		logger:   logger.With().Str("component", "store").Logger(),
		fallback: make(map[string]RiskState),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unavailable, using in-memory risk state")
	} else {
		s.available.Store(true)
		s.logger.Info().Str("address", cfg.Address).Msg("risk state store connected")
	}
	return s
}

func (s *Store) Close() error {
	return s.client.Close()
}

func riskKey(accountID string) string {
	return fmt.Sprintf("%s:%s", riskKeyPrefix, accountID)
}

// SaveRiskState writes the snapshot to Redis and the fallback cache.
func (s *Store) SaveRiskState(ctx context.Context, state RiskState) error {
	state.SavedAt = time.Now().UTC()

	s.mu.Lock()
	s.fallback[state.AccountID] = state
	s.mu.Unlock()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal risk state: %w", err)
	}
	if err := s.client.Set(ctx, riskKey(state.AccountID), data, riskStateTTL).Err(); err != nil {
		if s.available.Swap(false) {
			s.logger.Warn().Err(err).Msg("redis write failed, falling back to memory")
		}
		return nil
	}
	s.available.Store(true)
	return nil
}

// LoadRiskState reads the snapshot back. A miss returns found=false.
func (s *Store) LoadRiskState(ctx context.Context, accountID string) (RiskState, bool, error) {
	data, err := s.client.Get(ctx, riskKey(accountID)).Bytes()
	if err == redis.Nil {
		return RiskState{}, false, nil
	}
	if err != nil {
		s.mu.RLock()
		state, ok := s.fallback[accountID]
		s.mu.RUnlock()
		if ok {
			return state, true, nil
		}
		return RiskState{}, false, err
	}

	var state RiskState
	if err := json.Unmarshal(data, &state); err != nil {
		return RiskState{}, false, fmt.Errorf("unmarshal risk state: %w", err)
	}
	s.available.Store(true)
	return state, true, nil
}

// Available reports whether the last Redis call succeeded.
func (s *Store) Available() bool {
	return s.available.Load()
}
