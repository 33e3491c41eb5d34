// Package database is the Postgres trade journal. The engine runs fine
// without it; a nil journal means trades are only logged.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/orchestrator"
)

// Journal persists opened and closed trades per account.
type Journal struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// TradeRecord is one journal row as served back through the API.
type TradeRecord struct {
	ID         int64      `json:"id"`
	AccountID  string     `json:"account_id"`
	Ticket     int64      `json:"ticket"`
	Symbol     string     `json:"symbol"`
	Direction  string     `json:"direction"`
	SignalType string     `json:"signal_type"`
	Confidence float64    `json:"confidence"`
	Lots       float64    `json:"lots"`
	Entry      float64    `json:"entry"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Reason     string     `json:"reason,omitempty"`
	Profit     *float64   `json:"profit,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

var _ orchestrator.Journal = (*Journal)(nil)

// NewJournal connects the pool and ensures the schema exists.
func NewJournal(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*Journal, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.HealthCheckPeriod = time.Minute

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	j := &Journal{pool: pool, logger: logger.With().Str("component", "journal").Logger()}
	if err := j.initSchema(connCtx); err != nil {
		pool.Close()
		return nil, err
	}
	j.logger.Info().Msg("trade journal connected")
	return j, nil
}

func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

func (j *Journal) HealthCheck(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

func (j *Journal) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			account_id TEXT NOT NULL,
			ticket BIGINT NOT NULL,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			lots DOUBLE PRECISION NOT NULL,
			entry DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			profit DOUBLE PRECISION,
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (account_id, ticket)
		);
		CREATE INDEX IF NOT EXISTS idx_trades_account_opened
			ON trades (account_id, opened_at DESC);
	`
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("unable to create schema: %w", err)
	}
	return nil
}

// RecordOpen inserts the execution row. Re-running the same ticket is a
// no-op so a webhook replay cannot duplicate rows.
func (j *Journal) RecordOpen(ctx context.Context, accountID string, trade orchestrator.OpenedTrade) error {
	query := `
		INSERT INTO trades (account_id, ticket, symbol, direction, signal_type, confidence,
			lots, entry, stop_loss, take_profit, reason, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (account_id, ticket) DO NOTHING
	`
	_, err := j.pool.Exec(ctx, query,
		accountID, trade.Ticket, trade.Symbol, string(trade.Direction), trade.SignalType,
		trade.Confidence, trade.Lots, trade.Entry, trade.StopLoss, trade.TakeProfit,
		trade.Reason, trade.OpenedAt,
	)
	return err
}

// RecordClose stamps the close on the matching open row. Deals with no
// journaled open (manual trades, restarts) are inserted whole so the
// history stays complete.
func (j *Journal) RecordClose(ctx context.Context, accountID string, deal broker.Deal) error {
	tag, err := j.pool.Exec(ctx, `
		UPDATE trades SET profit = $3, closed_at = $4
		WHERE account_id = $1 AND ticket = $2 AND closed_at IS NULL
	`, accountID, deal.Ticket, deal.Profit, deal.ClosedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = j.pool.Exec(ctx, `
		INSERT INTO trades (account_id, ticket, symbol, direction, signal_type, lots,
			entry, stop_loss, take_profit, profit, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, 'UNTRACKED', $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, ticket) DO UPDATE
			SET profit = EXCLUDED.profit, closed_at = EXCLUDED.closed_at
	`, accountID, deal.Ticket, deal.Symbol, string(deal.Direction), deal.Lots,
		deal.OpenPrice, deal.StopLoss, deal.TakeProfit, deal.Profit, deal.OpenedAt, deal.ClosedAt)
	return err
}

// RecentTrades returns the newest rows for one account.
func (j *Journal) RecentTrades(ctx context.Context, accountID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := j.pool.Query(ctx, `
		SELECT id, account_id, ticket, symbol, direction, signal_type, confidence,
			lots, entry, stop_loss, take_profit, reason, profit, opened_at, closed_at
		FROM trades
		WHERE account_id = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Ticket, &t.Symbol, &t.Direction,
			&t.SignalType, &t.Confidence, &t.Lots, &t.Entry, &t.StopLoss, &t.TakeProfit,
			&t.Reason, &t.Profit, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
