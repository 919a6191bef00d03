// Package engine es el scheduler del desk: en cada tick evalúa las señales
// de prioridad y despacha una única tarea al agente de razonamiento.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/application/orchestrator"
	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/metrics"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// PortfolioReader es lo mínimo que el scheduler necesita del servicio de trading.
type PortfolioReader interface {
	Portfolio(ctx context.Context) (domain.Portfolio, error)
}

// HypothesisLister lista todas las hipótesis.
type HypothesisLister interface {
	List(ctx context.Context) ([]domain.Hypothesis, error)
}

// HandoffReader devuelve los handoffs pendientes de un rol.
type HandoffReader interface {
	Pending(ctx context.Context, role domain.Role) ([]domain.Handoff, error)
}

// standing es el orden fijo del round-robin.
var standing = []string{
	domain.ActionReviewPortfolio,
	domain.ActionSelectHypothesis,
	domain.ActionProcessHandoffs,
}

// Config controla el scheduler.
type Config struct {
	Interval          time.Duration
	DispatchThreshold int // urgencia exclusiva; <= 0 usa 70
}

// Scheduler construye el estado, calcula las señales y despacha.
type Scheduler struct {
	portfolio  PortfolioReader
	hypotheses HypothesisLister
	handoffs   HandoffReader
	markets    ports.MarketProvider
	reasoner   ports.Reasoner
	cfg        Config
	now        func() time.Time

	mu   sync.Mutex
	next int // próxima responsabilidad permanente
}

// New crea un Scheduler. markets puede ser nil: sin feed no hay señales de tiempo
// ni marcas de precio.
func New(
	portfolio PortfolioReader,
	hypotheses HypothesisLister,
	handoffs HandoffReader,
	markets ports.MarketProvider,
	reasoner ports.Reasoner,
	cfg Config,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{
		portfolio:  portfolio,
		hypotheses: hypotheses,
		handoffs:   handoffs,
		markets:    markets,
		reasoner:   reasoner,
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithClock reemplaza el reloj. Usado por tests.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// TickResult resume lo que hizo un tick.
type TickResult struct {
	Signals []domain.Signal
	Task    domain.Task
	Err     error // error del dispatch; el tick en sí fue válido
}

// Run ejecuta un tick inmediato y luego uno por intervalo hasta que ctx se cancele.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"interval", s.cfg.Interval,
		"threshold", s.cfg.DispatchThreshold,
	)

	if _, err := s.Tick(ctx); err != nil {
		slog.Error("tick failed", "err", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				slog.Error("tick failed", "err", err)
			}
		}
	}
}

// Tick evalúa el estado actual y despacha exactamente una tarea: la señal
// más urgente si supera el umbral, o la siguiente responsabilidad permanente.
// Devuelve error solo si no se pudo construir el estado.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	now := s.now()

	state, err := s.loadState(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("engine.Tick: %w", err)
	}

	signals := orchestrator.Evaluate(state, now)
	for _, sig := range signals {
		metrics.SignalsEmitted.WithLabelValues(sig.Action).Inc()
	}

	var task domain.Task
	if top, ok := orchestrator.Dispatchable(signals, s.cfg.DispatchThreshold); ok {
		task = signalTask(top, now)
	} else {
		s.mu.Lock()
		action := standing[s.next]
		s.mu.Unlock()
		task = s.standingTask(ctx, action, state, now)
	}

	res := TickResult{Signals: signals, Task: task}
	if err := s.reasoner.Dispatch(ctx, task); err != nil {
		metrics.Dispatches.WithLabelValues(task.Action, "error").Inc()
		slog.Warn("dispatch failed", "task", task.ID, "action", task.Action, "err", err)
		res.Err = err
		return res, nil
	}
	metrics.Dispatches.WithLabelValues(task.Action, "ok").Inc()

	// El round-robin solo avanza cuando la responsabilidad se entregó.
	if task.Standing {
		s.mu.Lock()
		s.next = (s.next + 1) % len(standing)
		s.mu.Unlock()
	}

	slog.Debug("tick complete",
		"signals", len(signals),
		"action", task.Action,
		"standing", task.Standing,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// loadState lee portfolio, hipótesis y mercados. Un fallo del feed de
// mercados degrada a estado sin precios; un fallo de persistencia aborta.
func (s *Scheduler) loadState(ctx context.Context) (orchestrator.State, error) {
	p, err := s.portfolio.Portfolio(ctx)
	if err != nil {
		return orchestrator.State{}, fmt.Errorf("load portfolio: %w", err)
	}
	hyps, err := s.hypotheses.List(ctx)
	if err != nil {
		return orchestrator.State{}, fmt.Errorf("load hypotheses: %w", err)
	}

	state := orchestrator.State{
		Portfolio:  p,
		Hypotheses: hyps,
		Prices:     map[string]decimal.Decimal{},
		Markets:    map[string]domain.Market{},
	}
	if s.markets == nil {
		return state, nil
	}

	ids := marketIDs(p, hyps)
	if len(ids) == 0 {
		return state, nil
	}
	markets, err := s.markets.FetchMarkets(ctx, ids)
	if err != nil {
		slog.Warn("market feed unavailable, evaluating without prices", "err", err)
		return state, nil
	}
	for id, mk := range markets {
		state.Markets[id] = mk
		if mk.YesPrice.IsPositive() {
			state.Prices[id] = mk.YesPrice
		}
	}
	return state, nil
}

// marketIDs junta los mercados de las posiciones abiertas y de las
// hipótesis vinculadas, sin repetir.
func marketIDs(p domain.Portfolio, hyps []domain.Hypothesis) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, pos := range p.Positions {
		add(pos.Market)
	}
	for _, h := range hyps {
		add(h.LinkedMarket)
	}
	return ids
}

func signalTask(sig domain.Signal, now time.Time) domain.Task {
	ctx := make(map[string]any, len(sig.Context)+1)
	for k, v := range sig.Context {
		ctx[k] = v
	}
	ctx["signalType"] = sig.Kind
	return domain.Task{
		ID:         "task-" + uuid.NewString(),
		Action:     sig.Action,
		Urgency:    sig.Urgency,
		Context:    ctx,
		Dispatched: now,
	}
}

func (s *Scheduler) standingTask(ctx context.Context, action string, state orchestrator.State, now time.Time) domain.Task {
	t := domain.Task{
		ID:         "task-" + uuid.NewString(),
		Action:     action,
		Standing:   true,
		Context:    map[string]any{},
		Dispatched: now,
	}

	switch action {
	case domain.ActionReviewPortfolio:
		t.Context["cash"] = state.Portfolio.Cash.StringFixed(2)
		t.Context["openPositions"] = len(state.Portfolio.Positions)
		t.Context["realizedPnl"] = state.Portfolio.RealizedPnL.StringFixed(2)
	case domain.ActionSelectHypothesis:
		counts := map[string]int{}
		for _, h := range state.Hypotheses {
			counts[string(h.Status)]++
		}
		t.Context["statusCounts"] = counts
	case domain.ActionProcessHandoffs:
		if s.handoffs == nil {
			break
		}
		pending, err := s.handoffs.Pending(ctx, domain.RoleTrader)
		if err != nil {
			slog.Warn("pending handoffs unavailable", "err", err)
			break
		}
		ids := make([]string, 0, len(pending))
		for _, h := range pending {
			ids = append(ids, h.ID)
		}
		t.Context["pending"] = len(ids)
		t.Context["handoffIds"] = ids
	}
	return t
}
