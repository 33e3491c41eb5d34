// Package news tracks scheduled high-impact economic events and answers
// whether a symbol is inside an event blackout window.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-trading-agent/config"
)

// Event is one scheduled release. Only identity and timing are kept;
// forecasts and actuals play no part in the decision.
type Event struct {
	Currency string    `json:"currency"`
	Title    string    `json:"title"`
	Impact   string    `json:"impact"`
	Time     time.Time `json:"time"`
}

// Calendar answers blackout queries. The zero implementation may be nil.
type Calendar interface {
	// Blackout reports whether the instant falls inside an event window
	// for either currency leg of the symbol.
	Blackout(symbol string, now time.Time) (Event, bool)
}

// Feed is a Calendar backed by an HTTP JSON feed, refreshed in the
// background.
type Feed struct {
	cfg    config.NewsConfig
	logger zerolog.Logger
	client *http.Client

	mu     sync.RWMutex
	events []Event
}

func NewFeed(cfg config.NewsConfig, logger zerolog.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Run refreshes the calendar until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	f.refresh(ctx)
	ticker := time.NewTicker(time.Duration(f.cfg.RefreshMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.refresh(ctx)
		}
	}
}

func (f *Feed) refresh(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.FeedURL, nil)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Bad news feed URL")
		return
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn().Err(err).Msg("News feed fetch failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn().Int("status", resp.StatusCode).Msg("News feed returned non-OK")
		return
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Warn().Err(err).Msg("News feed read failed")
		return
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		f.logger.Warn().Err(err).Msg("News feed parse failed")
		return
	}

	high := events[:0]
	for _, e := range events {
		if strings.EqualFold(e.Impact, "high") {
			high = append(high, e)
		}
	}

	f.mu.Lock()
	f.events = high
	f.mu.Unlock()
	f.logger.Debug().Int("events", len(high)).Msg("News calendar refreshed")
}

// SetEvents replaces the calendar contents. Used by tests and the API.
func (f *Feed) SetEvents(events []Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
}

func (f *Feed) Blackout(symbol string, now time.Time) (Event, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, e := range f.events {
		if !affects(symbol, e.Currency) {
			continue
		}
		start := e.Time.Add(-f.cfg.PreBuffer())
		end := e.Time.Add(f.cfg.PostBuffer())
		if !now.Before(start) && !now.After(end) {
			return e, true
		}
	}
	return Event{}, false
}

// affects reports whether the event currency is either leg of the pair.
func affects(symbol, currency string) bool {
	symbol = strings.ToUpper(symbol)
	currency = strings.ToUpper(currency)
	if len(symbol) < 6 || len(currency) != 3 {
		return false
	}
	return symbol[:3] == currency || symbol[3:6] == currency
}

// String implements fmt.Stringer for log lines.
func (e Event) String() string {
	return fmt.Sprintf("%s %s @ %s", e.Currency, e.Title, e.Time.UTC().Format(time.RFC3339))
}
