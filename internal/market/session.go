package market

import "time"

// SessionPhase maps the UTC intraday clock onto the three-stage session
// model the detectors key off: the Asian range builds the setup, London
// reacts to it, New York resolves it.
type SessionPhase string

const (
	PhaseAccumulation SessionPhase = "ACCUMULATION" // Asian session, 00:00-08:00 UTC
	PhaseReaction     SessionPhase = "REACTION"     // London session, 08:00-13:00 UTC
	PhaseSolution     SessionPhase = "SOLUTION"     // New York session, 13:00-21:00 UTC
	PhaseClosed       SessionPhase = "CLOSED"
)

// WeeklyAct is the day-of-week role in the weekly manipulation cycle.
type WeeklyAct string

const (
	ActConnector    WeeklyAct = "CONNECTOR"    // Sunday, no trading
	ActInduction    WeeklyAct = "INDUCTION"    // Monday, range forms, no trading
	ActAccumulation WeeklyAct = "ACCUMULATION" // Tuesday, secondary entries
	ActReversal     WeeklyAct = "REVERSAL"     // Wednesday, primary reversal day
	ActDistribution WeeklyAct = "DISTRIBUTION" // Thursday, trend continuation
	ActEpilogue     WeeklyAct = "EPILOGUE"     // Friday, wind-down and flatten
)

// PhaseAt returns the session phase for a UTC instant. Weekends are CLOSED.
func PhaseAt(t time.Time) SessionPhase {
	t = t.UTC()
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return PhaseClosed
	}
	switch h := t.Hour(); {
	case h < 8:
		return PhaseAccumulation
	case h < 13:
		return PhaseReaction
	case h < 21:
		return PhaseSolution
	default:
		return PhaseClosed
	}
}

// ActAt returns the weekly act for a UTC instant. Saturday maps to the
// epilogue tail so callers see a defined value on every day.
func ActAt(t time.Time) WeeklyAct {
	switch t.UTC().Weekday() {
	case time.Sunday:
		return ActConnector
	case time.Monday:
		return ActInduction
	case time.Tuesday:
		return ActAccumulation
	case time.Wednesday:
		return ActReversal
	case time.Thursday:
		return ActDistribution
	default:
		return ActEpilogue
	}
}

// TradableAct reports whether entries are permitted on the day's act.
// Sunday and Monday are observation-only.
func TradableAct(act WeeklyAct) bool {
	return act != ActConnector && act != ActInduction
}

// InKillzone reports whether the instant falls in the New York killzone
// (13:00-16:00 UTC), the window where reversal setups carry the most weight.
func InKillzone(t time.Time) bool {
	h := t.UTC().Hour()
	return h >= 13 && h < 16
}
