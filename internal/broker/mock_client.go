package broker

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"forex-trading-agent/internal/market"
)

// MockClient simulates a broker account for development and tests.
// Prices follow a small random walk; orders fill instantly at the quote.
type MockClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	balance    float64
	positions  map[int64]*Position
	deals      []Deal
	nextTicket int64
	lastUpdate time.Time
	rng        *rand.Rand
}

// NewMockClient creates a simulated account with realistic base prices.
func NewMockClient(balance float64) *MockClient {
	if balance <= 0 {
		balance = 25000
	}
	return &MockClient{
		prices: map[string]float64{
			"EURUSD": 1.0850,
			"GBPUSD": 1.2700,
			"USDJPY": 149.50,
			"USDCHF": 0.8850,
			"AUDUSD": 0.6550,
			"NZDUSD": 0.6100,
			"USDCAD": 1.3600,
			"XAUUSD": 2350.00,
		},
		balance:    balance,
		positions:  make(map[int64]*Position),
		nextTicket: 1000,
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPrice pins a symbol's mid price. Used by tests to drive scenarios.
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[strings.ToUpper(symbol)] = price
	mc.lastUpdate = time.Now()
}

func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}
	for symbol, price := range mc.prices {
		// Random walk, about +-2 pips per tick
		change := (mc.rng.Float64() - 0.5) * 4 * market.PipSize(symbol)
		mc.prices[symbol] = price + change
	}
	mc.lastUpdate = time.Now()
}

func (mc *MockClient) AccountInfo(ctx context.Context) (*AccountInfo, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	equity := mc.balance
	for _, p := range mc.positions {
		equity += mc.unrealized(p)
	}
	margin := 0.0
	for _, p := range mc.positions {
		margin += p.Lots * 1000 // rough 1:100 leverage margin
	}
	return &AccountInfo{
		Balance:    mc.balance,
		Equity:     equity,
		FreeMargin: equity - margin,
		Currency:   "USD",
	}, nil
}

func (mc *MockClient) Candles(ctx context.Context, symbol, timeframe string, count int) ([]market.Candle, error) {
	mc.updatePrices()

	mc.mu.RLock()
	base, ok := mc.prices[strings.ToUpper(symbol)]
	mc.mu.RUnlock()
	if !ok {
		base = 1.0
	}

	step := timeframeDuration(timeframe)
	pip := market.PipSize(symbol)

	candles := make([]market.Candle, count)
	now := time.Now().UTC().Truncate(step)
	price := base
	for i := count - 1; i >= 0; i-- {
		open := price
		change := (mc.rng.Float64() - 0.5) * 20 * pip
		close := open + change
		high := math.Max(open, close) + mc.rng.Float64()*5*pip
		low := math.Min(open, close) - mc.rng.Float64()*5*pip
		candles[i] = market.Candle{
			Time:   now.Add(-time.Duration(count-i) * step),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: 500 + mc.rng.Float64()*1500,
		}
		price = close
	}
	// Generated backwards from the live price; reverse the walk so the
	// series ends at the current quote.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i].Time, candles[j].Time = candles[j].Time, candles[i].Time
	}
	return candles, nil
}

func (mc *MockClient) Quote(ctx context.Context, symbol string) (*Quote, error) {
	mc.updatePrices()

	mc.mu.RLock()
	defer mc.mu.RUnlock()

	mid, ok := mc.prices[strings.ToUpper(symbol)]
	if !ok {
		mid = 1.0
	}
	half := market.PipSize(symbol) * 0.6
	return &Quote{
		Symbol: strings.ToUpper(symbol),
		Bid:    mid - half,
		Ask:    mid + half,
		Time:   time.Now().UTC(),
	}, nil
}

func (mc *MockClient) OpenPositions(ctx context.Context) ([]Position, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	out := make([]Position, 0, len(mc.positions))
	for _, p := range mc.positions {
		cp := *p
		cp.Profit = mc.unrealized(p)
		out = append(out, cp)
	}
	return out, nil
}

func (mc *MockClient) ClosedDeals(ctx context.Context, since time.Time) ([]Deal, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var out []Deal
	for _, d := range mc.deals {
		if !d.ClosedAt.Before(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (mc *MockClient) OpenOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mid, ok := mc.prices[strings.ToUpper(req.Symbol)]
	if !ok {
		return nil, ErrRejected
	}
	half := market.PipSize(req.Symbol) * 0.6
	fill := mid + half
	if req.Direction == Sell {
		fill = mid - half
	}

	mc.nextTicket++
	p := &Position{
		Ticket:     mc.nextTicket,
		Symbol:     strings.ToUpper(req.Symbol),
		Direction:  req.Direction,
		Lots:       req.Lots,
		OpenPrice:  fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenedAt:   time.Now().UTC(),
	}
	mc.positions[p.Ticket] = p

	return &OrderResult{Ticket: p.Ticket, FillPrice: fill}, nil
}

func (mc *MockClient) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	p, ok := mc.positions[ticket]
	if !ok {
		return ErrRejected
	}
	if stopLoss > 0 {
		p.StopLoss = stopLoss
	}
	if takeProfit > 0 {
		p.TakeProfit = takeProfit
	}
	return nil
}

func (mc *MockClient) ClosePosition(ctx context.Context, ticket int64) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	p, ok := mc.positions[ticket]
	if !ok {
		return ErrRejected
	}
	profit := mc.unrealized(p)
	mc.balance += profit

	mid := mc.prices[p.Symbol]
	mc.deals = append(mc.deals, Deal{
		Ticket:     p.Ticket,
		Symbol:     p.Symbol,
		Direction:  p.Direction,
		Lots:       p.Lots,
		OpenPrice:  p.OpenPrice,
		ClosePrice: mid,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Profit:     profit,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   time.Now().UTC(),
	})
	delete(mc.positions, ticket)
	return nil
}

// unrealized computes floating PnL at the current mid. Caller holds mc.mu.
func (mc *MockClient) unrealized(p *Position) float64 {
	mid, ok := mc.prices[p.Symbol]
	if !ok {
		return 0
	}
	pip := market.PipSize(p.Symbol)
	pips := (mid - p.OpenPrice) / pip
	if p.Direction == Sell {
		pips = -pips
	}
	return pips * market.PipDollarValue(p.Symbol, mid) * p.Lots
}

func timeframeDuration(timeframe string) time.Duration {
	switch strings.ToUpper(timeframe) {
	case "M1":
		return time.Minute
	case "M5":
		return 5 * time.Minute
	case "M15":
		return 15 * time.Minute
	case "M30":
		return 30 * time.Minute
	case "H1":
		return time.Hour
	case "H4":
		return 4 * time.Hour
	case "D1":
		return 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}
