package orchestrator_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/application/orchestrator"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

var (
	d   = decimal.RequireFromString
	now = time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
)

func position(id, market string, dir domain.Direction, entry, shares, stop string) domain.Position {
	e, s := d(entry), d(shares)
	pos := domain.Position{ID: id, Market: market, Direction: dir, EntryPrice: e, Shares: s, Cost: e.Mul(s)}
	if stop != "" {
		pos.ExitCriteria.StopLoss = d(stop)
	}
	return pos
}

func actions(signals []domain.Signal) []string {
	out := make([]string, len(signals))
	for i, s := range signals {
		out[i] = s.Action
	}
	return out
}

func TestEvaluate_Empty(t *testing.T) {
	signals := orchestrator.Evaluate(orchestrator.State{}, now)
	assert.Empty(t, signals)
	_, ok := orchestrator.Dispatchable(signals, 70)
	assert.False(t, ok)
}

func TestEvaluate_RiskSignals(t *testing.T) {
	state := orchestrator.State{
		Portfolio: domain.Portfolio{Positions: []domain.Position{
			// −20%: review; stop lejos
			position("p-loss", "m1", domain.DirectionYes, "0.50", "100", "0.20"),
			// a 5% del stop, pnl −10%
			position("p-near", "m2", domain.DirectionYes, "0.50", "100", "0.43"),
			// NO: precio subiendo hacia el stop 0.80
			position("p-no", "m3", domain.DirectionNo, "0.70", "100", "0.80"),
			// sin precio: se ignora
			position("p-blind", "m4", domain.DirectionYes, "0.50", "100", "0.49"),
		}},
		Prices: map[string]decimal.Decimal{"m1": d("0.40"), "m2": d("0.45"), "m3": d("0.75")},
	}

	signals := orchestrator.Evaluate(state, now)
	require.Len(t, signals, 3)
	assert.Equal(t, []string{domain.ActionStopLossWarning, domain.ActionStopLossWarning, domain.ActionReviewPosition}, actions(signals))
	assert.Equal(t, "p-near", signals[0].Context["positionId"])
	assert.Equal(t, "p-no", signals[1].Context["positionId"])
	assert.Equal(t, "p-loss", signals[2].Context["positionId"])
	assert.Equal(t, "portfolio_risk", signals[0].Kind)

	top, ok := orchestrator.Dispatchable(signals, 70)
	require.True(t, ok)
	assert.Equal(t, 95, top.Urgency)
}

func TestEvaluate_TimeAndBlockedSignals(t *testing.T) {
	state := orchestrator.State{
		Hypotheses: []domain.Hypothesis{
			{ID: "h-close", Status: domain.StatusTesting, LinkedMarket: "soon", UpdatedAt: now.Add(-time.Hour)},
			{ID: "h-far", Status: domain.StatusProposed, LinkedMarket: "later", UpdatedAt: now.Add(-time.Hour)},
			{ID: "h-stale", Status: domain.StatusBlocked, BlockedHandoffID: "ho-1", UpdatedAt: now.Add(-49 * time.Hour)},
			{ID: "h-done", Status: domain.StatusValidated, LinkedMarket: "soon", UpdatedAt: now.Add(-100 * time.Hour)},
		},
		Markets: map[string]domain.Market{
			"soon":  {ConditionID: "soon", EndDate: now.Add(20 * time.Hour)},
			"later": {ConditionID: "later", EndDate: now.Add(30 * time.Hour)},
		},
	}

	signals := orchestrator.Evaluate(state, now)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.ActionClosingMarketDecision, signals[0].Action)
	assert.Equal(t, 80, signals[0].Urgency)
	assert.Equal(t, "h-close", signals[0].Context["hypothesisIds"])
	assert.Equal(t, "20.0", signals[0].Context["hoursToClose"])

	assert.Equal(t, domain.ActionUnstickHypothesis, signals[1].Action)
	assert.Equal(t, "ho-1", signals[1].Context["handoffId"])

	top, ok := orchestrator.Dispatchable(signals, 70)
	require.True(t, ok)
	assert.Equal(t, domain.ActionClosingMarketDecision, top.Action)
}

func TestDispatchable_ThresholdIsExclusive(t *testing.T) {
	state := orchestrator.State{
		Hypotheses: []domain.Hypothesis{
			{ID: "h", Status: domain.StatusProposed, UpdatedAt: now.Add(-72 * time.Hour)},
		},
	}
	signals := orchestrator.Evaluate(state, now)
	require.Len(t, signals, 1)
	_, ok := orchestrator.Dispatchable(signals, 70)
	assert.False(t, ok, "60 does not exceed 70")
	_, ok = orchestrator.Dispatchable(signals, 59)
	assert.True(t, ok)

	signals[0].Urgency = 70
	_, ok = orchestrator.Dispatchable(signals, 70)
	assert.False(t, ok)
}

func TestEvaluate_Deterministic(t *testing.T) {
	state := orchestrator.State{
		Portfolio: domain.Portfolio{Positions: []domain.Position{
			position("a", "m1", domain.DirectionYes, "0.50", "10", "0.46"),
			position("b", "m1", domain.DirectionYes, "0.50", "10", "0.46"),
		}},
		Prices: map[string]decimal.Decimal{"m1": d("0.48")},
	}
	first := orchestrator.Evaluate(state, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, orchestrator.Evaluate(state, now))
	}
}
