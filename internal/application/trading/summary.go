package trading

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// PositionMark es una posición valorada al último precio conocido.
type PositionMark struct {
	domain.Position
	CurrentPrice  *decimal.Decimal `json:"currentPrice,omitempty"`
	UnrealizedPnL decimal.Decimal  `json:"unrealizedPnl"`
	PnLPct        decimal.Decimal  `json:"pnlPct"`
}

// Summary es la vista de solo lectura del portfolio.
type Summary struct {
	Cash            decimal.Decimal `json:"cash"`
	StartingCapital decimal.Decimal `json:"startingCapital"`
	ReserveFloor    decimal.Decimal `json:"reserveFloor"`
	Deployable      decimal.Decimal `json:"deployable"`
	Invested        decimal.Decimal `json:"invested"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	RealizedPnL     decimal.Decimal `json:"realizedPnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealizedPnl"`
	Positions       []PositionMark  `json:"positions"`
	TradeCount      int             `json:"tradeCount"`
}

// Summarize valora p con prices. Las posiciones sin precio se marcan a coste.
func Summarize(p domain.Portfolio, prices map[string]decimal.Decimal, limits Limits) Summary {
	floor := limits.CashReservePct.Mul(p.StartingCapital)
	deployable := p.Cash.Sub(floor)
	if deployable.IsNegative() {
		deployable = decimal.Zero
	}

	s := Summary{
		Cash:            p.Cash,
		StartingCapital: p.StartingCapital,
		ReserveFloor:    floor,
		Deployable:      deployable,
		Invested:        p.Invested(),
		TotalValue:      p.TotalValue(),
		RealizedPnL:     p.RealizedPnL,
		UnrealizedPnL:   decimal.Zero,
		Positions:       make([]PositionMark, 0, len(p.Positions)),
		TradeCount:      len(p.Trades),
	}
	for _, pos := range p.Positions {
		mark := PositionMark{Position: pos, UnrealizedPnL: decimal.Zero, PnLPct: decimal.Zero}
		if price, ok := prices[pos.Market]; ok {
			mark.CurrentPrice = &price
			mark.UnrealizedPnL = pos.PnL(price)
			mark.PnLPct = pos.PnLPct(price)
			s.UnrealizedPnL = s.UnrealizedPnL.Add(mark.UnrealizedPnL)
		}
		s.Positions = append(s.Positions, mark)
	}
	return s
}

// PortfolioSummary carga el portfolio y lo valora con prices.
func (s *Service) PortfolioSummary(ctx context.Context, prices map[string]decimal.Decimal) (Summary, error) {
	p, err := s.Portfolio(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(p, prices, s.limits), nil
}
