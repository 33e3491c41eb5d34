package patterns

import (
	"fmt"

	"forex-trading-agent/internal/broker"
	"forex-trading-agent/internal/market"
)

// DetectSweepReversal looks for the latest bar running an unswept
// liquidity pool and closing back on the original side. The trade fades
// the sweep.
func DetectSweepReversal(snap market.Snapshot, zones []market.Zone) (Candidate, bool) {
	if len(snap.Candles) == 0 {
		return Candidate{}, false
	}
	last := snap.Last()

	for _, z := range zones {
		if !market.DetectSweep(z, last) {
			continue
		}
		// Swept a pool above price: expect the move back down, and vice versa.
		dir := broker.Sell
		stop := last.High
		wick := last.UpperWickRatio()
		if last.Low <= z.Price-market.SweepTolerance {
			dir = broker.Buy
			stop = last.Low
			wick = last.LowerWickRatio()
		}
		if wick < wickExhaustionRatio {
			continue
		}
		return Candidate{
			Symbol:        snap.Symbol,
			Direction:     dir,
			Type:          LiquiditySweep,
			Entry:         last.Close,
			StopExtreme:   stop,
			TargetLevel:   oppositeZone(zones, z, last.Close),
			CandleQuality: wick,
			Reason:        fmt.Sprintf("swept %s at %.5f", z.Kind, z.Price),
		}, true
	}
	return Candidate{}, false
}

// oppositeZone picks the strongest unswept pool on the other side of
// price as the target, or 0 when none exists.
func oppositeZone(zones []market.Zone, swept market.Zone, price float64) float64 {
	above := swept.Price < price
	for _, z := range zones {
		if z.Swept || z.Price == swept.Price {
			continue
		}
		if above && z.Price > price {
			return z.Price
		}
		if !above && z.Price < price {
			return z.Price
		}
	}
	return 0
}
