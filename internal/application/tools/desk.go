package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/application/hypothesis"
	"github.com/alejandrodnm/polydesk/internal/application/trading"
	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// Deps son los servicios que los tools exponen. Markets es opcional: sin él
// los precios solo llegan por argumento.
type Deps struct {
	Trading    *trading.Service
	Hypotheses *hypothesis.Manager
	Handoffs   *handoff.Queue
	Markets    ports.MarketProvider
}

type desk struct {
	Deps
}

// NewDesk registra todos los tools del core sobre deps.
func NewDesk(deps Deps) *Registry {
	d := &desk{Deps: deps}
	r := NewRegistry()

	// portfolio
	r.Register("validate_trade", "Check a proposed trade against the risk limits without executing it", typed(d.validateTrade))
	r.Register("get_approval_tier", "Return auto, notify or approve for an amount", typed(d.approvalTier))
	r.Register("execute_trade", "Validate and execute a paper trade, or defer it to human approval", typed(d.executeTrade))
	r.Register("exit_position", "Close an open position at a price and record the result", typed(d.exitPosition))
	r.Register("get_portfolio_summary", "Cash, reserve, exposure and marked positions", typed(d.summary))
	r.Register("check_exit_triggers", "List positions whose stop, target or time limit was reached", typed(d.exitTriggers))

	// hypotheses
	r.Register("create_hypothesis", "Propose a new trading hypothesis", typed(d.createHypothesis))
	r.Register("transition", "Move a hypothesis to another status", typed(d.transition))
	r.Register("add_evidence", "Append an observation and adjust confidence", typed(d.addEvidence))
	r.Register("block", "Block a hypothesis on a missing capability and open a builder handoff", typed(d.block))
	r.Register("select_next", "Pick the hypothesis to work on next", typed(d.selectNext))
	r.Register("record_trade_result", "Book a closed trade on a hypothesis", typed(d.recordTradeResult))
	r.Register("record_backtest", "Attach a backtest result to a hypothesis", typed(d.recordBacktest))
	r.Register("has_trade_validation", "Whether a hypothesis may back trades above the auto tier", typed(d.hasTradeValidation))
	r.Register("link_market", "Link a hypothesis to a market", typed(d.linkMarket))
	r.Register("get_hypothesis", "Return one hypothesis", typed(d.getHypothesis))
	r.Register("list_hypotheses", "Return every hypothesis", typed(d.listHypotheses))

	// handoffs
	r.Register("create_handoff", "Queue a work request for the other role", typed(d.createHandoff))
	r.Register("get_pending", "Pending handoffs for a role, most urgent first", typed(d.pending))
	r.Register("advance_handoff", "Move a handoff to in_progress or done", typed(d.advanceHandoff))
	return r
}

// ── portfolio ────────────────────────────────────────────────────────────────

func (d *desk) validateTrade(ctx context.Context, a trading.TradeParams) (any, error) {
	res, err := d.Trading.ValidateTrade(ctx, a)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type amountArgs struct {
	Amount decimal.Decimal `json:"amount"`
}

func (d *desk) approvalTier(_ context.Context, a amountArgs) (any, error) {
	if !a.Amount.IsPositive() {
		return nil, domain.Validationf("amount must be > 0")
	}
	return map[string]trading.Tier{"tier": d.Trading.Limits().ApprovalTier(a.Amount)}, nil
}

func (d *desk) executeTrade(ctx context.Context, a trading.TradeParams) (any, error) {
	res, err := d.Trading.ExecutePaperTrade(ctx, a)
	if err != nil && res.Error == "" {
		return nil, err
	}
	return res, err
}

type exitArgs struct {
	PositionID string            `json:"positionId"`
	ExitPrice  decimal.Decimal   `json:"exitPrice"`
	Reason     domain.ExitReason `json:"reason"`
}

func (d *desk) exitPosition(ctx context.Context, a exitArgs) (any, error) {
	if err := required("positionId", a.PositionID); err != nil {
		return nil, err
	}
	res, err := d.Trading.ExitPosition(ctx, a.PositionID, a.ExitPrice, a.Reason)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type pricesArgs struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

func (d *desk) summary(ctx context.Context, a pricesArgs) (any, error) {
	p, err := d.Trading.Portfolio(ctx)
	if err != nil {
		return nil, err
	}
	return trading.Summarize(p, d.prices(ctx, positionMarkets(p), a.Prices), d.Trading.Limits()), nil
}

func (d *desk) exitTriggers(ctx context.Context, a pricesArgs) (any, error) {
	p, err := d.Trading.Portfolio(ctx)
	if err != nil {
		return nil, err
	}
	res, err := d.Trading.CheckExitTriggers(ctx, d.prices(ctx, positionMarkets(p), a.Prices))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ── hypotheses ───────────────────────────────────────────────────────────────

type createHypothesisArgs struct {
	Statement         string   `json:"statement"`
	TestMethod        string   `json:"testMethod"`
	EntryRules        string   `json:"entryRules"`
	ExitRules         string   `json:"exitRules"`
	MinSampleSize     int      `json:"minSampleSize"`
	ExpectedWinRate   float64  `json:"expectedWinRate"`
	InitialConfidence *float64 `json:"initialConfidence"`
	LinkedMarket      string   `json:"linkedMarket"`
}

func (d *desk) createHypothesis(ctx context.Context, a createHypothesisArgs) (any, error) {
	h, err := d.Hypotheses.Create(ctx, hypothesis.Proposal(a))
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": h.ID, "hypothesis": h}, nil
}

type transitionArgs struct {
	ID     string                  `json:"id"`
	Target domain.HypothesisStatus `json:"target"`
	Reason string                  `json:"reason"`
}

func (d *desk) transition(ctx context.Context, a transitionArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Hypotheses.Transition(ctx, a.ID, a.Target, a.Reason)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type evidenceArgs struct {
	ID          string  `json:"id"`
	Observation string  `json:"observation"`
	Supports    *bool   `json:"supports"`
	Impact      float64 `json:"impact"`
}

func (d *desk) addEvidence(ctx context.Context, a evidenceArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	res, err := d.Hypotheses.AddEvidence(ctx, a.ID, hypothesis.Observation{
		Text: a.Observation, Supports: a.Supports, Impact: a.Impact,
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

type blockArgs struct {
	ID       string          `json:"id"`
	Need     string          `json:"need"`
	Priority domain.Priority `json:"priority"`
}

func (d *desk) block(ctx context.Context, a blockArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, ho, err := d.Hypotheses.Block(ctx, a.ID, a.Need, a.Priority)
	if err != nil {
		return nil, err
	}
	return map[string]any{"hypothesis": h, "handoffId": ho.ID}, nil
}

func (d *desk) selectNext(ctx context.Context, _ struct{}) (any, error) {
	hyps, err := d.Hypotheses.List(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, h := range hyps {
		if h.LinkedMarket != "" {
			ids = append(ids, h.LinkedMarket)
		}
	}
	sel, err := d.Hypotheses.SelectNext(ctx, d.markets(ctx, ids))
	if err != nil {
		return nil, err
	}
	return sel, nil
}

type tradeResultArgs struct {
	ID  string  `json:"id"`
	Won bool    `json:"won"`
	PnL float64 `json:"pnl"`
}

func (d *desk) recordTradeResult(ctx context.Context, a tradeResultArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Hypotheses.RecordTradeResult(ctx, a.ID, a.Won, a.PnL)
	if err != nil {
		return nil, err
	}
	return h, nil
}

type backtestArgs struct {
	ID         string  `json:"id"`
	SampleSize int     `json:"sampleSize"`
	WinRate    float64 `json:"winRate"`
	PnL        float64 `json:"pnl"`
}

func (d *desk) recordBacktest(ctx context.Context, a backtestArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Hypotheses.RecordBacktest(ctx, a.ID, domain.Backtest{SampleSize: a.SampleSize, WinRate: a.WinRate, PnL: a.PnL})
	if err != nil {
		return nil, err
	}
	return h, nil
}

type idArgs struct {
	ID string `json:"id"`
}

func (d *desk) hasTradeValidation(ctx context.Context, a idArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	v, err := d.Hypotheses.HasTradeValidation(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *desk) getHypothesis(ctx context.Context, a idArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Hypotheses.Get(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (d *desk) listHypotheses(ctx context.Context, _ struct{}) (any, error) {
	hyps, err := d.Hypotheses.List(ctx)
	if err != nil {
		return nil, err
	}
	return hyps, nil
}

type linkArgs struct {
	ID     string `json:"id"`
	Market string `json:"market"`
}

func (d *desk) linkMarket(ctx context.Context, a linkArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Hypotheses.LinkMarket(ctx, a.ID, a.Market)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ── handoffs ─────────────────────────────────────────────────────────────────

type createHandoffArgs struct {
	From     domain.Role        `json:"from"`
	To       domain.Role        `json:"to"`
	Type     domain.HandoffType `json:"type"`
	Priority domain.Priority    `json:"priority"`
	Context  json.RawMessage    `json:"context"`
}

func (d *desk) createHandoff(ctx context.Context, a createHandoffArgs) (any, error) {
	h, err := d.Handoffs.Create(ctx, handoff.Request(a))
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": h.ID, "handoff": h}, nil
}

type roleArgs struct {
	Role domain.Role `json:"role"`
}

func (d *desk) pending(ctx context.Context, a roleArgs) (any, error) {
	list, err := d.Handoffs.Pending(ctx, a.Role)
	if err != nil {
		return nil, err
	}
	return list, nil
}

type advanceArgs struct {
	ID     string               `json:"id"`
	Role   domain.Role          `json:"role"`
	Status domain.HandoffStatus `json:"status"`
}

func (d *desk) advanceHandoff(ctx context.Context, a advanceArgs) (any, error) {
	if err := required("id", a.ID); err != nil {
		return nil, err
	}
	h, err := d.Handoffs.Advance(ctx, a.ID, a.Role, a.Status)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ── precios ──────────────────────────────────────────────────────────────────

func positionMarkets(p domain.Portfolio) []string {
	seen := map[string]bool{}
	var ids []string
	for _, pos := range p.Positions {
		if !seen[pos.Market] {
			seen[pos.Market] = true
			ids = append(ids, pos.Market)
		}
	}
	return ids
}

// markets consulta el proveedor si hay uno. Un fallo del feed degrada a "sin
// datos" en lugar de fallar el tool.
func (d *desk) markets(ctx context.Context, ids []string) map[string]domain.Market {
	if d.Markets == nil || len(ids) == 0 {
		return map[string]domain.Market{}
	}
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	mk, err := d.Markets.FetchMarkets(ctx, ids)
	if err != nil {
		slog.Warn("market fetch failed", "markets", len(ids), "err", err)
		return map[string]domain.Market{}
	}
	return mk
}

// prices combina el feed con los precios explícitos; los explícitos ganan.
func (d *desk) prices(ctx context.Context, ids []string, override map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	var missing []string
	for _, id := range ids {
		if _, ok := override[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id, mk := range d.markets(ctx, missing) {
		if mk.YesPrice.IsPositive() {
			out[id] = mk.YesPrice
		}
	}
	for id, p := range override {
		out[id] = p
	}
	return out
}
