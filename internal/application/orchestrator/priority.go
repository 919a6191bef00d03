// Package orchestrator convierte el estado del portfolio y de las hipótesis
// en una cola de señales ordenada por urgencia. No muta ni persiste nada.
package orchestrator

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Umbrales de las señales.
var (
	reviewPnLPct     = decimal.RequireFromString("-0.15")
	stopDistancePct  = decimal.RequireFromString("0.10")
	closingWindow    = 24 * time.Hour
	staleHypothesis  = 48 * time.Hour
	defaultThreshold = 70
)

// State es todo lo que Evaluate necesita. Prices son precios YES por mercado;
// Markets aporta las fechas de cierre.
type State struct {
	Portfolio  domain.Portfolio
	Prices     map[string]decimal.Decimal
	Hypotheses []domain.Hypothesis
	Markets    map[string]domain.Market
}

// Evaluate calcula las señales de state a now, de mayor a menor urgencia.
// Los empates se resuelven por clase: risk, time, blocked.
func Evaluate(state State, now time.Time) []domain.Signal {
	signals := []domain.Signal{}
	signals = append(signals, riskSignals(state)...)
	signals = append(signals, timeSignals(state, now)...)
	signals = append(signals, blockedSignals(state, now)...)

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Urgency != signals[j].Urgency {
			return signals[i].Urgency > signals[j].Urgency
		}
		return signals[i].Type < signals[j].Type
	})
	return signals
}

// Dispatchable devuelve la primera señal si su urgencia supera threshold.
// threshold <= 0 usa el valor por defecto (70).
func Dispatchable(signals []domain.Signal, threshold int) (domain.Signal, bool) {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	if len(signals) == 0 || signals[0].Urgency <= threshold {
		return domain.Signal{}, false
	}
	return signals[0], true
}

func riskSignals(state State) []domain.Signal {
	var out []domain.Signal
	for _, pos := range state.Portfolio.Positions {
		price, ok := state.Prices[pos.Market]
		if !ok {
			continue
		}
		ctx := map[string]string{
			"positionId":   pos.ID,
			"market":       pos.Market,
			"direction":    string(pos.Direction),
			"entryPrice":   pos.EntryPrice.String(),
			"currentPrice": price.String(),
			"hypothesisId": pos.HypothesisID,
		}

		if pct := pos.PnLPct(price); pct.LessThan(reviewPnLPct) {
			c := clone(ctx)
			c["pnlPct"] = pct.StringFixed(4)
			out = append(out, signal(domain.SignalRisk, domain.UrgencyReviewPosition, domain.ActionReviewPosition, c))
		}

		if dist, ok := stopDistance(pos, price); ok && dist.LessThanOrEqual(stopDistancePct) {
			c := clone(ctx)
			c["stopLoss"] = pos.ExitCriteria.StopLoss.String()
			c["stopDistance"] = dist.StringFixed(4)
			out = append(out, signal(domain.SignalRisk, domain.UrgencyStopLossWarning, domain.ActionStopLossWarning, c))
		}
	}
	return out
}

// stopDistance es la distancia relativa al stop en la dirección de la
// pérdida; negativa si el stop ya se cruzó.
func stopDistance(pos domain.Position, price decimal.Decimal) (decimal.Decimal, bool) {
	stop := pos.ExitCriteria.StopLoss
	if !stop.IsPositive() {
		return decimal.Zero, false
	}
	gap := price.Sub(stop)
	if pos.Direction == domain.DirectionNo {
		gap = gap.Neg()
	}
	return gap.Div(stop), true
}

func timeSignals(state State, now time.Time) []domain.Signal {
	linked := map[string][]string{}
	for _, h := range state.Hypotheses {
		if h.LinkedMarket == "" || h.Status.Terminal() {
			continue
		}
		linked[h.LinkedMarket] = append(linked[h.LinkedMarket], h.ID)
	}

	ids := make([]string, 0, len(linked))
	for id := range linked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []domain.Signal
	for _, id := range ids {
		mk, ok := state.Markets[id]
		if !ok || mk.Closed || !mk.ClosesWithin(now, closingWindow) {
			continue
		}
		out = append(out, signal(domain.SignalTime, domain.UrgencyClosingMarket, domain.ActionClosingMarketDecision,
			map[string]string{
				"market":        id,
				"question":      mk.Question,
				"endDate":       mk.EndDate.UTC().Format(time.RFC3339),
				"hoursToClose":  decimal.NewFromFloat(mk.UntilClose(now).Hours()).StringFixed(1),
				"hypothesisIds": strings.Join(linked[id], ","),
			}))
	}
	return out
}

func blockedSignals(state State, now time.Time) []domain.Signal {
	var out []domain.Signal
	for _, h := range state.Hypotheses {
		if h.Status.Terminal() || h.Idle(now) <= staleHypothesis {
			continue
		}
		c := map[string]string{
			"hypothesisId": h.ID,
			"status":       string(h.Status),
			"idleHours":    decimal.NewFromFloat(h.Idle(now).Hours()).StringFixed(0),
			"statement":    h.Statement,
		}
		if h.BlockedHandoffID != "" {
			c["handoffId"] = h.BlockedHandoffID
		}
		out = append(out, signal(domain.SignalBlocked, domain.UrgencyUnstick, domain.ActionUnstickHypothesis, c))
	}
	return out
}

func signal(class domain.SignalClass, urgency int, action string, ctx map[string]string) domain.Signal {
	return domain.Signal{Type: class, Kind: class.String(), Urgency: urgency, Action: action, Context: ctx}
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+2)
	for k, v := range m {
		out[k] = v
	}
	return out
}
