// Package trading valida y ejecuta trades del portfolio simulado: límites de
// riesgo, tiers de aprobación, entradas, salidas y triggers de salida.
package trading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/application/hypothesis"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Tier es el nivel de aprobación de un trade según su tamaño.
type Tier string

const (
	TierAuto    Tier = "auto"
	TierNotify  Tier = "notify"
	TierApprove Tier = "approve"
)

// Límites por defecto del validador.
var (
	defaultMaxMarketExposure = decimal.RequireFromString("0.20")
	defaultCashReservePct    = decimal.RequireFromString("0.20")
	defaultAutoMax           = decimal.NewFromInt(50)
	defaultNotifyMax         = decimal.NewFromInt(200)
)

// Fracciones a partir de las cuales se emite un warning.
var (
	exposureWarnRatio = decimal.RequireFromString("0.75")
	reserveWarnRatio  = decimal.RequireFromString("1.25")
)

// Limits son los parámetros de riesgo del validador.
type Limits struct {
	MaxMarketExposure decimal.Decimal // fracción del valor total por mercado
	MaxPositions      int
	CashReservePct    decimal.Decimal // fracción del capital inicial que no se puede gastar
	AutoMax           decimal.Decimal
	NotifyMax         decimal.Decimal
	ValidationGate    decimal.Decimal // amount > gate exige hasTradeValidation
}

// DefaultLimits devuelve 20% por mercado, 10 posiciones, 20% de reserva,
// auto hasta $50, notify hasta $200, gate de validación en $50.
func DefaultLimits() Limits {
	return Limits{
		MaxMarketExposure: defaultMaxMarketExposure,
		MaxPositions:      10,
		CashReservePct:    defaultCashReservePct,
		AutoMax:           defaultAutoMax,
		NotifyMax:         defaultNotifyMax,
		ValidationGate:    defaultAutoMax,
	}
}

// ApprovalTier devuelve el tier de amount. Los bordes caen en el tier inferior.
func (l Limits) ApprovalTier(amount decimal.Decimal) Tier {
	switch {
	case amount.LessThanOrEqual(l.AutoMax):
		return TierAuto
	case amount.LessThanOrEqual(l.NotifyMax):
		return TierNotify
	default:
		return TierApprove
	}
}

// TradeParams describe un trade propuesto. Los precios están en el espacio
// del precio YES; para NO el take profit queda por debajo y el stop por encima.
type TradeParams struct {
	Market       string              `json:"market"`
	Direction    domain.Direction    `json:"direction"`
	Amount       decimal.Decimal     `json:"amount"`
	Price        decimal.Decimal     `json:"price"`
	HypothesisID string              `json:"hypothesisId"`
	ExitCriteria domain.ExitCriteria `json:"exitCriteria"`
	Rationale    string              `json:"rationale"`
}

// ValidationResult es el veredicto del validador.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Hypotheses es lo que trading necesita del ciclo de vida de hipótesis.
type Hypotheses interface {
	Get(ctx context.Context, id string) (domain.Hypothesis, error)
	Evaluate(h domain.Hypothesis) hypothesis.Validation
	RecordTradeResult(ctx context.Context, id string, won bool, pnl float64) (domain.Hypothesis, error)
}

// Validator aplica los límites de riesgo a un trade propuesto.
type Validator struct {
	limits Limits
	hyps   Hypotheses
}

// NewValidator crea un validador.
func NewValidator(limits Limits, hyps Hypotheses) *Validator {
	return &Validator{limits: limits, hyps: hyps}
}

// Validate corta en el primer fallo. Solo devuelve error si no pudo leer la
// hipótesis; un rechazo viaja en ValidationResult.
func (v *Validator) Validate(ctx context.Context, params TradeParams, p domain.Portfolio, now time.Time) (ValidationResult, error) {
	if msg := checkParams(params, now); msg != "" {
		return reject(msg), nil
	}

	// 1. reserva de cash
	floor := v.limits.CashReservePct.Mul(p.StartingCapital)
	cashAfter := p.Cash.Sub(params.Amount)
	if cashAfter.LessThan(floor) {
		return reject(fmt.Sprintf("%s: cash %s - %s = %s < floor %s",
			domain.MsgCashReserve, p.Cash.StringFixed(2), params.Amount.StringFixed(2),
			cashAfter.StringFixed(2), floor.StringFixed(2))), nil
	}

	// 2. exposición por mercado
	total := p.TotalValue()
	exposureAfter := p.Exposure(params.Market).Add(params.Amount)
	maxExposure := v.limits.MaxMarketExposure.Mul(total)
	if !total.IsPositive() || exposureAfter.GreaterThan(maxExposure) {
		return reject(fmt.Sprintf("%s: %s in %s would exceed %s (%s%% of %s)",
			domain.MsgSingleMarketLimit, exposureAfter.StringFixed(2), params.Market,
			maxExposure.StringFixed(2), v.limits.MaxMarketExposure.Shift(2).String(), total.StringFixed(2))), nil
	}

	// 3. número de posiciones; escalar sobre una posición existente no abre otra
	scaling := p.MatchingPosition(params.Market, params.Direction, params.HypothesisID) >= 0
	if !scaling && len(p.Positions) >= v.limits.MaxPositions {
		return reject(fmt.Sprintf("%s: %d open positions (max %d)",
			domain.MsgPositionLimit, len(p.Positions), v.limits.MaxPositions)), nil
	}

	// 4. hipótesis vinculada
	h, err := v.hyps.Get(ctx, params.HypothesisID)
	if errors.Is(err, domain.ErrNotFound) {
		return reject(fmt.Sprintf("hypothesis %q not found", params.HypothesisID)), nil
	}
	if err != nil {
		return ValidationResult{}, fmt.Errorf("trading.Validate: load hypothesis: %w", err)
	}
	if h.Status == domain.StatusInvalidated || h.Status == domain.StatusBlocked {
		return reject(fmt.Sprintf("hypothesis %s is %s", h.ID, h.Status)), nil
	}

	// 5. gate de validación para tamaños grandes
	if params.Amount.GreaterThan(v.limits.ValidationGate) {
		if hv := v.hyps.Evaluate(h); !hv.Validated {
			return reject(fmt.Sprintf("%s: %s", domain.MsgInsufficientValidated, hv.Reason)), nil
		}
	}

	res := ValidationResult{Valid: true}
	if tier := v.limits.ApprovalTier(params.Amount); tier != TierAuto {
		res.Warnings = append(res.Warnings, fmt.Sprintf("amount %s requires %s tier", params.Amount.StringFixed(2), tier))
	}
	if exposureAfter.GreaterThan(maxExposure.Mul(exposureWarnRatio)) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("market exposure %s is near the %s limit",
			exposureAfter.StringFixed(2), maxExposure.StringFixed(2)))
	}
	if cashAfter.LessThan(floor.Mul(reserveWarnRatio)) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("cash after trade %s is near the reserve floor %s",
			cashAfter.StringFixed(2), floor.StringFixed(2)))
	}
	return res, nil
}

func checkParams(params TradeParams, now time.Time) string {
	one := decimal.NewFromInt(1)
	switch {
	case strings.TrimSpace(params.Market) == "":
		return "market is required"
	case !params.Direction.Valid():
		return fmt.Sprintf("direction must be YES or NO, got %q", params.Direction)
	case !params.Amount.IsPositive():
		return "amount must be > 0"
	case !params.Price.IsPositive() || params.Price.GreaterThanOrEqual(one):
		return "price must be in (0, 1)"
	case strings.TrimSpace(params.HypothesisID) == "":
		return "hypothesisId is required"
	}

	ec := params.ExitCriteria
	levels := []struct {
		name  string
		value decimal.Decimal
	}{{"takeProfit", ec.TakeProfit}, {"stopLoss", ec.StopLoss}}
	for _, l := range levels {
		if l.value.IsZero() {
			continue
		}
		if l.value.IsNegative() || l.value.GreaterThanOrEqual(one) {
			return l.name + " must be in (0, 1)"
		}
	}
	up, down := ec.TakeProfit, ec.StopLoss
	if params.Direction == domain.DirectionNo {
		up, down = ec.StopLoss, ec.TakeProfit
	}
	if !up.IsZero() && up.LessThanOrEqual(params.Price) {
		return fmt.Sprintf("exit criteria on the wrong side of entry %s for %s", params.Price, params.Direction)
	}
	if !down.IsZero() && down.GreaterThanOrEqual(params.Price) {
		return fmt.Sprintf("exit criteria on the wrong side of entry %s for %s", params.Price, params.Direction)
	}
	if ec.TimeLimit != nil && !ec.TimeLimit.After(now) {
		return "timeLimit must be in the future"
	}
	return ""
}

func reject(msg string) ValidationResult {
	return ValidationResult{Valid: false, Error: msg}
}
