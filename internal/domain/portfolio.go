package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction es el lado del mercado binario sobre el que se abre la posición.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// Valid devuelve true si la dirección es YES o NO.
func (d Direction) Valid() bool {
	return d == DirectionYes || d == DirectionNo
}

// TradeAction distingue entradas de salidas en el historial de trades.
type TradeAction string

const (
	TradeEntry TradeAction = "ENTRY"
	TradeExit  TradeAction = "EXIT"
)

// ExitReason explica por qué se cerró una posición.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTimeLimit  ExitReason = "time_limit"
	ExitManual     ExitReason = "manual"
)

// Valid devuelve true para las cuatro razones conocidas.
func (r ExitReason) Valid() bool {
	switch r {
	case ExitTakeProfit, ExitStopLoss, ExitTimeLimit, ExitManual:
		return true
	}
	return false
}

// ExitCriteria define cuándo debería cerrarse una posición.
// Los precios están en el espacio del precio YES del mercado (0–1).
type ExitCriteria struct {
	TakeProfit decimal.Decimal `json:"takeProfit"`
	StopLoss   decimal.Decimal `json:"stopLoss"`
	TimeLimit  *time.Time      `json:"timeLimit,omitempty"`
}

// Position es una posición abierta del portfolio simulado.
type Position struct {
	ID           string          `json:"id"`
	Market       string          `json:"market"`
	Direction    Direction       `json:"direction"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	Shares       decimal.Decimal `json:"shares"`
	Cost         decimal.Decimal `json:"cost"` // entryPrice × shares, sin fees
	HypothesisID string          `json:"hypothesisId"`
	ExitCriteria ExitCriteria    `json:"exitCriteria"`
	Rationale    string          `json:"rationale"`
	OpenedAt     time.Time       `json:"openedAt"`
}

// PnL devuelve el P&L de la posición si se cerrara a price.
// YES gana cuando el precio sube; NO gana cuando baja.
func (p Position) PnL(price decimal.Decimal) decimal.Decimal {
	move := price.Sub(p.EntryPrice)
	if p.Direction == DirectionNo {
		move = move.Neg()
	}
	return move.Mul(p.Shares)
}

// PnLPct devuelve el P&L relativo al coste de entrada.
func (p Position) PnLPct(price decimal.Decimal) decimal.Decimal {
	if p.Cost.IsZero() {
		return decimal.Zero
	}
	return p.PnL(price).Div(p.Cost)
}

// Trade es el registro inmutable de una entrada o salida realizada.
type Trade struct {
	ID           string          `json:"id"`
	PositionID   string          `json:"positionId"`
	Market       string          `json:"market"`
	Action       TradeAction     `json:"action"`
	Direction    Direction       `json:"direction"`
	Price        decimal.Decimal `json:"price"`
	Shares       decimal.Decimal `json:"shares"`
	Amount       decimal.Decimal `json:"amount"` // coste en ENTRY, proceeds en EXIT
	PnL          decimal.Decimal `json:"pnl"`
	HypothesisID string          `json:"hypothesisId"`
	Reason       ExitReason      `json:"reason,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Portfolio es el documento durable con cash, capital inicial y posiciones abiertas.
type Portfolio struct {
	Cash            decimal.Decimal `json:"cash"`
	StartingCapital decimal.Decimal `json:"startingCapital"`
	RealizedPnL     decimal.Decimal `json:"realizedPnl"`
	Positions       []Position      `json:"positions"`
	Trades          []Trade         `json:"trades"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// NewPortfolio crea el portfolio de bootstrap con todo el capital en cash.
func NewPortfolio(startingCapital decimal.Decimal, now time.Time) Portfolio {
	return Portfolio{
		Cash:            startingCapital,
		StartingCapital: startingCapital,
		RealizedPnL:     decimal.Zero,
		Positions:       []Position{},
		Trades:          []Trade{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Invested devuelve la suma del coste de las posiciones abiertas.
func (p Portfolio) Invested() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(pos.Cost)
	}
	return total
}

// TotalValue devuelve cash + coste de las posiciones (valor a coste).
func (p Portfolio) TotalValue() decimal.Decimal {
	return p.Cash.Add(p.Invested())
}

// Exposure devuelve el coste total abierto en un mercado.
func (p Portfolio) Exposure(market string) decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Positions {
		if pos.Market == market {
			total = total.Add(pos.Cost)
		}
	}
	return total
}

// FindPosition devuelve el índice de la posición o -1.
func (p Portfolio) FindPosition(id string) int {
	for i, pos := range p.Positions {
		if pos.ID == id {
			return i
		}
	}
	return -1
}

// MatchingPosition devuelve el índice de una posición con mismo mercado,
// dirección e hipótesis, o -1. Sobre ella se escala en lugar de abrir otra.
func (p Portfolio) MatchingPosition(market string, dir Direction, hypothesisID string) int {
	for i, pos := range p.Positions {
		if pos.Market == market && pos.Direction == dir && pos.HypothesisID == hypothesisID {
			return i
		}
	}
	return -1
}

// Clone devuelve una copia profunda para mutar sin tocar el original.
func (p Portfolio) Clone() Portfolio {
	c := p
	c.Positions = append([]Position{}, p.Positions...)
	c.Trades = append([]Trade{}, p.Trades...)
	return c
}
