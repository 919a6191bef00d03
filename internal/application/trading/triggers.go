package trading

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// ExitTrigger indica que una posición alcanzó uno de sus criterios de salida.
type ExitTrigger struct {
	PositionID   string            `json:"positionId"`
	Market       string            `json:"market"`
	Trigger      domain.ExitReason `json:"trigger"`
	CurrentPrice *decimal.Decimal  `json:"currentPrice,omitempty"`
}

// CheckExitTriggers es puro: no muta p ni fuerza salidas. prices son precios
// YES por mercado; una posición sin precio solo puede disparar time_limit.
func CheckExitTriggers(p domain.Portfolio, prices map[string]decimal.Decimal, now time.Time) []ExitTrigger {
	out := []ExitTrigger{}
	for _, pos := range p.Positions {
		ec := pos.ExitCriteria
		price, ok := prices[pos.Market]
		if ok {
			if hitStop(pos.Direction, price, ec.StopLoss) {
				out = append(out, trigger(pos, domain.ExitStopLoss, price))
			}
			if hitTake(pos.Direction, price, ec.TakeProfit) {
				out = append(out, trigger(pos, domain.ExitTakeProfit, price))
			}
		}
		if ec.TimeLimit != nil && !now.Before(*ec.TimeLimit) {
			t := ExitTrigger{PositionID: pos.ID, Market: pos.Market, Trigger: domain.ExitTimeLimit}
			if ok {
				pr := price
				t.CurrentPrice = &pr
			}
			out = append(out, t)
		}
	}
	return out
}

// CheckExitTriggers carga el portfolio y evalúa sus triggers.
func (s *Service) CheckExitTriggers(ctx context.Context, prices map[string]decimal.Decimal) ([]ExitTrigger, error) {
	p, err := s.Portfolio(ctx)
	if err != nil {
		return nil, err
	}
	return CheckExitTriggers(p, prices, s.now().UTC()), nil
}

// Para NO los niveles están espejados: el stop está por encima del precio.
func hitStop(dir domain.Direction, price, stop decimal.Decimal) bool {
	if stop.IsZero() {
		return false
	}
	if dir == domain.DirectionNo {
		return price.GreaterThanOrEqual(stop)
	}
	return price.LessThanOrEqual(stop)
}

func hitTake(dir domain.Direction, price, take decimal.Decimal) bool {
	if take.IsZero() {
		return false
	}
	if dir == domain.DirectionNo {
		return price.LessThanOrEqual(take)
	}
	return price.GreaterThanOrEqual(take)
}

func trigger(pos domain.Position, reason domain.ExitReason, price decimal.Decimal) ExitTrigger {
	return ExitTrigger{PositionID: pos.ID, Market: pos.Market, Trigger: reason, CurrentPrice: &price}
}
