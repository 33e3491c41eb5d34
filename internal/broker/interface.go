// Package broker defines the execution port the decision engine trades
// through, plus the HTTP bridge client and a simulated client for
// development and tests.
package broker

import (
	"context"
	"errors"
	"time"

	"forex-trading-agent/internal/market"
)

// Direction of a trade.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Opposite returns the other side.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Broker is the execution venue for one account. Implementations must be
// safe for concurrent use; every call is a single idempotent operation.
type Broker interface {
	AccountInfo(ctx context.Context) (*AccountInfo, error)
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error)
	Quote(ctx context.Context, symbol string) (*Quote, error)
	OpenPositions(ctx context.Context) ([]Position, error)
	ClosedDeals(ctx context.Context, since time.Time) ([]Deal, error)
	OpenOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	ClosePosition(ctx context.Context, ticket int64) error
}

// AccountInfo is the account snapshot used by the risk engine.
type AccountInfo struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// Quote is the current two-sided price.
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

func (q Quote) SpreadPips() float64 {
	return (q.Ask - q.Bid) / market.PipSize(q.Symbol)
}

// Position is an open trade as the venue reports it.
type Position struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Lots       float64   `json:"lots"`
	OpenPrice  float64   `json:"open_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Profit     float64   `json:"profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Deal is a closed trade.
type Deal struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Lots       float64   `json:"lots"`
	OpenPrice  float64   `json:"open_price"`
	ClosePrice float64   `json:"close_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Profit     float64   `json:"profit"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// HitStopLoss reports whether the deal closed at or beyond its stop.
func (d Deal) HitStopLoss() bool {
	if d.StopLoss <= 0 {
		return false
	}
	if d.Direction == Buy {
		return d.ClosePrice <= d.StopLoss
	}
	return d.ClosePrice >= d.StopLoss
}

// OrderRequest is a market order with protective stops attached.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Lots       float64   `json:"lots"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Comment    string    `json:"comment"`
}

// OrderResult is the venue's acknowledgement.
type OrderResult struct {
	Ticket    int64   `json:"ticket"`
	FillPrice float64 `json:"fill_price"`
}

// Sentinel errors. Transient unavailability is retried next cycle;
// rejections are permanent for the attempted order; auth errors take the
// whole account offline.
var (
	ErrUnavailable = errors.New("broker unavailable")
	ErrRejected    = errors.New("order rejected")
	ErrAuth        = errors.New("broker authentication failed")
)

// Ensure both clients implement Broker
var _ Broker = (*Client)(nil)
var _ Broker = (*MockClient)(nil)
