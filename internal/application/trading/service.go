package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/metrics"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// shareScale son los decimales con los que se guardan las shares de una entrada.
const shareScale = 6

// TradeResult es la respuesta de ExecutePaperTrade.
type TradeResult struct {
	Success          bool            `json:"success"`
	TradeID          string          `json:"tradeId,omitempty"`
	PositionID       string          `json:"positionId,omitempty"`
	Shares           decimal.Decimal `json:"shares"`
	Cost             decimal.Decimal `json:"cost"`
	Tier             Tier            `json:"tier,omitempty"`
	RequiresApproval bool            `json:"requiresApproval,omitempty"`
	ApprovalID       string          `json:"approvalId,omitempty"`
	Error            string          `json:"error,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
}

// ExitResult es la respuesta de ExitPosition.
type ExitResult struct {
	Success  bool            `json:"success"`
	TradeID  string          `json:"tradeId"`
	PnL      decimal.Decimal `json:"pnl"`
	Proceeds decimal.Decimal `json:"proceeds"`
	Cash     decimal.Decimal `json:"cash"`
}

// Service ejecuta trades sobre el portfolio persistido. Cada mutación es un
// read-modify-write completo del documento con control de versión.
type Service struct {
	store     ports.PortfolioStore
	hyps      Hypotheses
	notifier  ports.Notifier
	validator *Validator
	limits    Limits
	now       func() time.Time
}

// NewService crea el servicio de trading.
func NewService(store ports.PortfolioStore, hyps Hypotheses, notifier ports.Notifier, limits Limits) *Service {
	return &Service{
		store:     store,
		hyps:      hyps,
		notifier:  notifier,
		validator: NewValidator(limits, hyps),
		limits:    limits,
		now:       time.Now,
	}
}

// WithClock reemplaza la fuente de tiempo. Usado por tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Limits devuelve los límites configurados.
func (s *Service) Limits() Limits { return s.limits }

// Bootstrap crea el portfolio con startingCapital si todavía no existe.
// Un portfolio existente nunca se resetea.
func (s *Service) Bootstrap(ctx context.Context, startingCapital decimal.Decimal) (domain.Portfolio, error) {
	p, _, err := s.store.LoadPortfolio(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Portfolio{}, fmt.Errorf("trading.Bootstrap: load: %w", err)
	}
	if !startingCapital.IsPositive() {
		return domain.Portfolio{}, domain.Validationf("starting capital must be > 0")
	}

	p = domain.NewPortfolio(startingCapital, s.now().UTC())
	if _, err := s.store.SavePortfolio(ctx, p, 0); err != nil {
		if errors.Is(err, domain.ErrConcurrency) {
			// Otro proceso ganó el bootstrap.
			p, _, err = s.store.LoadPortfolio(ctx)
			return p, err
		}
		return domain.Portfolio{}, fmt.Errorf("trading.Bootstrap: save: %w", err)
	}
	slog.Info("portfolio bootstrapped", "capital", startingCapital.StringFixed(2))
	return p, nil
}

// Portfolio devuelve el documento actual.
func (s *Service) Portfolio(ctx context.Context) (domain.Portfolio, error) {
	p, _, err := s.store.LoadPortfolio(ctx)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("trading.Portfolio: load: %w", err)
	}
	return p, nil
}

// ValidateTrade valida params contra el portfolio persistido sin mutarlo.
func (s *Service) ValidateTrade(ctx context.Context, params TradeParams) (ValidationResult, error) {
	p, err := s.Portfolio(ctx)
	if err != nil {
		return ValidationResult{}, err
	}
	return s.validator.Validate(ctx, params, p, s.now().UTC())
}

// ExecutePaperTrade valida y, según el tier, ejecuta el trade o lo difiere a
// aprobación humana. Un trade rechazado devuelve un ValidationError y no escribe.
func (s *Service) ExecutePaperTrade(ctx context.Context, params TradeParams) (TradeResult, error) {
	p, version, err := s.store.LoadPortfolio(ctx)
	if err != nil {
		return TradeResult{}, fmt.Errorf("trading.ExecutePaperTrade: load: %w", err)
	}
	now := s.now().UTC()

	check, err := s.validator.Validate(ctx, params, p, now)
	if err != nil {
		return TradeResult{}, err
	}
	if !check.Valid {
		metrics.TradeRejections.WithLabelValues(rejectionLabel(check.Error)).Inc()
		slog.Warn("trade rejected", "market", params.Market, "amount", params.Amount.StringFixed(2), "reason", check.Error)
		return TradeResult{Success: false, Error: check.Error}, domain.Validationf("%s", check.Error)
	}

	tier := s.limits.ApprovalTier(params.Amount)
	if tier == TierApprove {
		id, err := s.notifier.RequestApproval(ctx, domain.ApprovalRequest{
			Market:       params.Market,
			Direction:    params.Direction,
			Amount:       params.Amount,
			Price:        params.Price,
			HypothesisID: params.HypothesisID,
			Rationale:    params.Rationale,
			RequestedAt:  now,
		})
		if err != nil {
			return TradeResult{}, fmt.Errorf("trading.ExecutePaperTrade: request approval: %w", err)
		}
		metrics.ApprovalsRequested.Inc()
		slog.Info("trade deferred to approval", "approval", id, "market", params.Market, "amount", params.Amount.StringFixed(2))
		return TradeResult{
			Success: false, Tier: tier, RequiresApproval: true, ApprovalID: id, Warnings: check.Warnings,
		}, nil
	}

	next := p.Clone()
	// shares se trunca a shareScale y cost se deriva de él, así
	// cost == price × shares exacto y nunca supera amount.
	shares := params.Amount.Div(params.Price).Truncate(shareScale)
	cost := params.Price.Mul(shares)

	var pos domain.Position
	if idx := next.MatchingPosition(params.Market, params.Direction, params.HypothesisID); idx >= 0 {
		pos = next.Positions[idx]
		pos.Shares = pos.Shares.Add(shares)
		pos.Cost = pos.Cost.Add(cost)
		pos.EntryPrice = pos.Cost.Div(pos.Shares)
		if !params.ExitCriteria.TakeProfit.IsZero() || !params.ExitCriteria.StopLoss.IsZero() || params.ExitCriteria.TimeLimit != nil {
			pos.ExitCriteria = params.ExitCriteria
		}
		next.Positions[idx] = pos
	} else {
		pos = domain.Position{
			ID:           "pos-" + uuid.NewString(),
			Market:       params.Market,
			Direction:    params.Direction,
			EntryPrice:   params.Price,
			Shares:       shares,
			Cost:         cost,
			HypothesisID: params.HypothesisID,
			ExitCriteria: params.ExitCriteria,
			Rationale:    params.Rationale,
			OpenedAt:     now,
		}
		next.Positions = append(next.Positions, pos)
	}

	trade := domain.Trade{
		ID:           "trd-" + uuid.NewString(),
		PositionID:   pos.ID,
		Market:       params.Market,
		Action:       domain.TradeEntry,
		Direction:    params.Direction,
		Price:        params.Price,
		Shares:       shares,
		Amount:       cost,
		PnL:          decimal.Zero,
		HypothesisID: params.HypothesisID,
		Timestamp:    now,
	}
	next.Trades = append(next.Trades, trade)
	next.Cash = next.Cash.Sub(cost)
	next.UpdatedAt = now

	if _, err := s.store.SavePortfolio(ctx, next, version); err != nil {
		return TradeResult{}, fmt.Errorf("trading.ExecutePaperTrade: save: %w", err)
	}
	metrics.TradesTotal.WithLabelValues("entry", string(tier)).Inc()
	metrics.OpenPositions.Set(float64(len(next.Positions)))

	slog.Info("paper trade executed",
		"trade", trade.ID, "position", pos.ID, "market", params.Market, "direction", params.Direction,
		"price", params.Price.String(), "shares", shares.StringFixed(4), "cost", cost.StringFixed(2), "tier", tier)

	if tier == TierNotify {
		alert := domain.Alert{
			Level: domain.AlertInfo,
			Title: "Paper trade executed",
			Message: fmt.Sprintf("%s in %s: $%s at %s (%s shares)",
				params.Direction, params.Market, cost.StringFixed(2), params.Price.String(), shares.StringFixed(2)),
			At: now,
		}
		if err := s.notifier.Alert(ctx, alert); err != nil {
			// El trade ya está persistido; la alerta es best-effort.
			slog.Warn("notify alert failed", "trade", trade.ID, "err", err)
		}
	}

	return TradeResult{
		Success:    true,
		TradeID:    trade.ID,
		PositionID: pos.ID,
		Shares:     shares,
		Cost:       cost,
		Tier:       tier,
		Warnings:   check.Warnings,
	}, nil
}

// ExitPosition cierra la posición a exitPrice, acredita cost+pnl al cash y
// registra el resultado en la hipótesis vinculada.
func (s *Service) ExitPosition(ctx context.Context, positionID string, exitPrice decimal.Decimal, reason domain.ExitReason) (ExitResult, error) {
	if reason == "" {
		reason = domain.ExitManual
	}
	if !reason.Valid() {
		return ExitResult{}, domain.Validationf("unknown exit reason %q", reason)
	}
	if exitPrice.IsNegative() || exitPrice.GreaterThan(decimal.NewFromInt(1)) {
		return ExitResult{}, domain.Validationf("exit price must be in [0, 1]")
	}

	p, version, err := s.store.LoadPortfolio(ctx)
	if err != nil {
		return ExitResult{}, fmt.Errorf("trading.ExitPosition: load: %w", err)
	}
	idx := p.FindPosition(positionID)
	if idx < 0 {
		return ExitResult{}, domain.NotFoundf("position", positionID)
	}

	now := s.now().UTC()
	next := p.Clone()
	pos := next.Positions[idx]
	pnl := pos.PnL(exitPrice)
	proceeds := pos.Cost.Add(pnl)

	trade := domain.Trade{
		ID:           "trd-" + uuid.NewString(),
		PositionID:   pos.ID,
		Market:       pos.Market,
		Action:       domain.TradeExit,
		Direction:    pos.Direction,
		Price:        exitPrice,
		Shares:       pos.Shares,
		Amount:       proceeds,
		PnL:          pnl,
		HypothesisID: pos.HypothesisID,
		Reason:       reason,
		Timestamp:    now,
	}
	next.Positions = append(next.Positions[:idx], next.Positions[idx+1:]...)
	next.Trades = append(next.Trades, trade)
	next.Cash = next.Cash.Add(proceeds)
	next.RealizedPnL = next.RealizedPnL.Add(pnl)
	next.UpdatedAt = now

	if _, err := s.store.SavePortfolio(ctx, next, version); err != nil {
		return ExitResult{}, fmt.Errorf("trading.ExitPosition: save: %w", err)
	}
	metrics.TradesTotal.WithLabelValues("exit", string(reason)).Inc()
	metrics.OpenPositions.Set(float64(len(next.Positions)))
	metrics.RealizedPnL.Set(next.RealizedPnL.InexactFloat64())

	slog.Info("position closed",
		"position", pos.ID, "market", pos.Market, "reason", reason,
		"exit", exitPrice.String(), "pnl", pnl.StringFixed(2), "cash", next.Cash.StringFixed(2))

	if pos.HypothesisID != "" {
		won := pnl.IsPositive()
		if _, err := s.hyps.RecordTradeResult(ctx, pos.HypothesisID, won, pnl.InexactFloat64()); err != nil {
			// La salida ya está escrita; no se revierte por un fallo en el libro de hipótesis.
			slog.Error("record trade result failed", "hypothesis", pos.HypothesisID, "position", pos.ID, "err", err)
		}
	}

	return ExitResult{Success: true, TradeID: trade.ID, PnL: pnl, Proceeds: proceeds, Cash: next.Cash}, nil
}

// rejectionLabel reduce el mensaje de rechazo a un label de baja cardinalidad.
func rejectionLabel(msg string) string {
	for label, prefix := range map[string]string{
		"single_market":  domain.MsgSingleMarketLimit,
		"position_count": domain.MsgPositionLimit,
		"cash_reserve":   domain.MsgCashReserve,
		"validation":     domain.MsgInsufficientValidated,
	} {
		if strings.HasPrefix(msg, prefix) {
			return label
		}
	}
	if strings.HasPrefix(msg, "hypothesis") {
		return "hypothesis"
	}
	return "params"
}
