// Package gates runs the hard entry filters ahead of detection. Gates
// are ordered; the first failure wins and carries a typed reason.
package gates

import (
	"fmt"
	"time"

	"forex-trading-agent/config"
	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/news"
	"forex-trading-agent/internal/patterns"
	"forex-trading-agent/internal/risk"
)

// Reason classifies why the pipeline refused the symbol this cycle.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoTradeDay     Reason = "NO_TRADE_DAY"
	ReasonFridayCutoff   Reason = "FRIDAY_CUTOFF"
	ReasonMarketClosed   Reason = "MARKET_CLOSED"
	ReasonNewsBlackout   Reason = "NEWS_BLACKOUT"
	ReasonTraumaCooldown Reason = "TRAUMA_COOLDOWN"
	ReasonSLCooldown     Reason = "SL_COOLDOWN"
)

// Result is one gate pass verdict.
type Result struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

func pass() Result {
	return Result{Allowed: true}
}

func block(reason Reason, detail string) Result {
	return Result{Reason: reason, Detail: detail}
}

// Pipeline evaluates the symbol-level gates. The direction-dependent
// stop-loss cooldown runs separately once a candidate exists.
type Pipeline struct {
	trading  config.TradingConfig
	calendar news.Calendar
}

// NewPipeline builds a pipeline. calendar may be nil when the news feed
// is disabled.
func NewPipeline(trading config.TradingConfig, calendar news.Calendar) *Pipeline {
	return &Pipeline{trading: trading, calendar: calendar}
}

// Check runs the symbol-level gates in order: trading calendar, news
// blackout, god-candle cooldown.
func (p *Pipeline) Check(symbol string, trauma *patterns.TraumaTracker, now time.Time) Result {
	if r := p.checkCalendar(now); !r.Allowed {
		return r
	}
	if p.calendar != nil {
		if event, blocked := p.calendar.Blackout(symbol, now); blocked {
			return block(ReasonNewsBlackout,
				fmt.Sprintf("%s %s at %s", event.Currency, event.Title, event.Time.UTC().Format("15:04")))
		}
	}
	if trauma != nil {
		if blocked, detail := trauma.Blocked(now); blocked {
			return block(ReasonTraumaCooldown, detail)
		}
	}
	return pass()
}

// CheckDirection runs the direction-dependent gate for a concrete
// candidate.
func (p *Pipeline) CheckDirection(symbol string, dir broker.Direction, tilt *risk.TiltTracker, now time.Time) Result {
	if tilt != nil {
		if blocked, detail := tilt.OnCooldown(symbol, dir, now); blocked {
			return block(ReasonSLCooldown, detail)
		}
	}
	return pass()
}

func (p *Pipeline) checkCalendar(now time.Time) Result {
	now = now.UTC()
	switch now.Weekday() {
	case time.Saturday:
		return block(ReasonMarketClosed, "market closed")
	case time.Sunday:
		return block(ReasonNoTradeDay, "Sunday is observation only")
	case time.Monday:
		return block(ReasonNoTradeDay, "Monday is observation only")
	case time.Friday:
		if now.Hour() >= p.trading.FridayCutoffHour {
			return block(ReasonFridayCutoff,
				fmt.Sprintf("past Friday %02d:00 UTC cutoff", p.trading.FridayCutoffHour))
		}
	}
	// Off-session hours are not blocked here; the session factor in the
	// confidence score floors them instead.
	return pass()
}
