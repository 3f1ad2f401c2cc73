package monitor

import "memecoin-agent/internal/model"

// scaleOutStage describes one ninja staged-exit transition: the profit
// percent that unlocks it and the percent of *current remaining* tokens it
// sells. This is the corrected 80/75/100 @ 30/50/80 table (spec.md §4.9,
// Open Question (a) — not the stale 60/50/100 figures seen in some
// upstream comments).
type scaleOutStage struct {
	fromStage      int
	toStage        int
	triggerPercent float64
	sellPercent    float64
}

var scaleOutTable = []scaleOutStage{
	{fromStage: 0, toStage: 1, triggerPercent: 30, sellPercent: 80},
	{fromStage: 1, toStage: 2, triggerPercent: 50, sellPercent: 75},
	{fromStage: 2, toStage: 3, triggerPercent: 80, sellPercent: 100},
}

// CheckExit implements the exit-decision state machine (spec.md §4.9). It is
// a pure function over a position snapshot and the current price; it never
// mutates the registry. ok is false when no exit condition fires.
func CheckExit(pos model.Position, currentPrice float64) (model.ExitDecision, bool) {
	if pos.Unsellable {
		return model.ExitDecision{}, false
	}

	if pos.Venue == model.VenueCurve && needsPriceSync(pos) {
		return model.ExitDecision{}, false
	}

	if currentPrice <= pos.StopLossPrice {
		return model.ExitDecision{Reason: model.ExitStopLoss}, true
	}

	if pos.Class != model.SignalClassNinja {
		if currentPrice >= pos.TakeProfitPrice {
			return model.ExitDecision{Reason: model.ExitTakeProfit}, true
		}
		return model.ExitDecision{}, false
	}

	return checkNinjaScaleOut(pos, currentPrice)
}

func checkNinjaScaleOut(pos model.Position, currentPrice float64) (model.ExitDecision, bool) {
	if pos.EntryPriceUSD <= 0 {
		return model.ExitDecision{}, false
	}
	profitPercent := (currentPrice/pos.EntryPriceUSD - 1) * 100

	for _, stage := range scaleOutTable {
		if pos.ScaledExitStage != stage.fromStage {
			continue
		}
		if profitPercent >= stage.triggerPercent {
			return model.ExitDecision{
				Reason:         model.ExitScaledTakeProfit,
				Stage:          stage.toStage,
				SellPercent:    stage.sellPercent,
				TriggerPercent: profitPercent,
			}, true
		}
		return model.ExitDecision{}, false
	}

	return model.ExitDecision{}, false
}
