// Package hypothesis implements the hypothesis lifecycle: the status state
// machine, evidence-weighted confidence, trade-result bookkeeping and the
// scoring used to pick the next hypothesis to work on.
package hypothesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/metrics"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

const defaultInitialConfidence = 0.5

// Config holds the trade-validation gate thresholds.
type Config struct {
	MinEvidence           int     // supporting observations required by HasTradeValidation
	MinEvidenceConfidence float64 // confidence required alongside MinEvidence
	DefaultMinSampleSize  int     // used when a hypothesis does not set minSampleSize
}

// DefaultConfig returns the documented gate: 3 supporting observations at
// confidence >= 0.50, or a sample of at least minSampleSize (default 10).
func DefaultConfig() Config {
	return Config{MinEvidence: 3, MinEvidenceConfidence: 0.50, DefaultMinSampleSize: 10}
}

// Handoffs is the part of the handoff queue the manager needs.
type Handoffs interface {
	Create(ctx context.Context, req handoff.Request) (domain.Handoff, error)
	Get(ctx context.Context, id string) (domain.Handoff, error)
}

// Manager owns every mutation of the hypotheses document.
type Manager struct {
	store    ports.HypothesisStore
	handoffs Handoffs
	cfg      Config
	now      func() time.Time
}

// New creates a lifecycle manager.
func New(store ports.HypothesisStore, handoffs Handoffs, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.MinEvidence <= 0 {
		cfg.MinEvidence = def.MinEvidence
	}
	if cfg.MinEvidenceConfidence <= 0 {
		cfg.MinEvidenceConfidence = def.MinEvidenceConfidence
	}
	if cfg.DefaultMinSampleSize <= 0 {
		cfg.DefaultMinSampleSize = def.DefaultMinSampleSize
	}
	return &Manager{store: store, handoffs: handoffs, cfg: cfg, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Proposal is the input to Create.
type Proposal struct {
	Statement         string
	TestMethod        string
	EntryRules        string
	ExitRules         string
	MinSampleSize     int
	ExpectedWinRate   float64
	InitialConfidence *float64
	LinkedMarket      string
}

// Create stores a new hypothesis in the proposed state.
func (m *Manager) Create(ctx context.Context, prop Proposal) (domain.Hypothesis, error) {
	if strings.TrimSpace(prop.Statement) == "" {
		return domain.Hypothesis{}, domain.Validationf("statement is required")
	}
	if prop.MinSampleSize < 0 {
		return domain.Hypothesis{}, domain.Validationf("minSampleSize must be >= 0")
	}
	if prop.ExpectedWinRate < 0 || prop.ExpectedWinRate > 1 {
		return domain.Hypothesis{}, domain.Validationf("expectedWinRate must be in [0,1]")
	}
	confidence := defaultInitialConfidence
	if prop.InitialConfidence != nil {
		if *prop.InitialConfidence < 0 || *prop.InitialConfidence > 1 {
			return domain.Hypothesis{}, domain.Validationf("initial confidence must be in [0,1]")
		}
		confidence = *prop.InitialConfidence
	}

	book, version, err := m.store.LoadHypotheses(ctx)
	if err != nil {
		return domain.Hypothesis{}, fmt.Errorf("hypothesis.Create: load: %w", err)
	}

	now := m.now().UTC()
	h := domain.Hypothesis{
		ID:              "hyp-" + uuid.NewString(),
		Statement:       prop.Statement,
		Status:          domain.StatusProposed,
		Confidence:      confidence,
		Evidence:        []domain.Evidence{},
		TestMethod:      prop.TestMethod,
		EntryRules:      prop.EntryRules,
		ExitRules:       prop.ExitRules,
		MinSampleSize:   prop.MinSampleSize,
		ExpectedWinRate: prop.ExpectedWinRate,
		LinkedMarket:    prop.LinkedMarket,
		StatusReason:    "proposed",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	book.Items[h.ID] = h
	if _, err := m.store.SaveHypotheses(ctx, book, version); err != nil {
		return domain.Hypothesis{}, fmt.Errorf("hypothesis.Create: save: %w", err)
	}

	slog.Info("hypothesis proposed", "id", h.ID, "statement", h.Statement)
	return h, nil
}

// Get returns the hypothesis with id.
func (m *Manager) Get(ctx context.Context, id string) (domain.Hypothesis, error) {
	book, _, err := m.store.LoadHypotheses(ctx)
	if err != nil {
		return domain.Hypothesis{}, fmt.Errorf("hypothesis.Get: load: %w", err)
	}
	h, ok := book.Items[id]
	if !ok {
		return domain.Hypothesis{}, domain.NotFoundf("hypothesis", id)
	}
	return h, nil
}

// List returns every hypothesis in creation order.
func (m *Manager) List(ctx context.Context) ([]domain.Hypothesis, error) {
	book, _, err := m.store.LoadHypotheses(ctx)
	if err != nil {
		return nil, fmt.Errorf("hypothesis.List: load: %w", err)
	}
	return book.Sorted(), nil
}

// LinkMarket ties the hypothesis to a market so that selection and the
// orchestrator can see when it closes.
func (m *Manager) LinkMarket(ctx context.Context, id, market string) (domain.Hypothesis, error) {
	if strings.TrimSpace(market) == "" {
		return domain.Hypothesis{}, domain.Validationf("market is required")
	}
	return m.mutate(ctx, "LinkMarket", id, func(h *domain.Hypothesis, now time.Time) error {
		h.LinkedMarket = market
		h.UpdatedAt = now
		return nil
	})
}

// RecordTradeResult books a closed trade. It never changes status on its own.
func (m *Manager) RecordTradeResult(ctx context.Context, id string, won bool, pnl float64) (domain.Hypothesis, error) {
	return m.mutate(ctx, "RecordTradeResult", id, func(h *domain.Hypothesis, now time.Time) error {
		if won {
			h.TestResults.Wins++
		} else {
			h.TestResults.Losses++
		}
		h.TestResults.PnL += pnl
		h.UpdatedAt = now
		return nil
	})
}

// RecordBacktest attaches (or replaces) the latest backtest result.
func (m *Manager) RecordBacktest(ctx context.Context, id string, bt domain.Backtest) (domain.Hypothesis, error) {
	if bt.SampleSize <= 0 {
		return domain.Hypothesis{}, domain.Validationf("backtest sampleSize must be > 0")
	}
	if bt.WinRate < 0 || bt.WinRate > 1 {
		return domain.Hypothesis{}, domain.Validationf("backtest winRate must be in [0,1]")
	}
	return m.mutate(ctx, "RecordBacktest", id, func(h *domain.Hypothesis, now time.Time) error {
		bt.RecordedAt = now
		h.Backtest = &bt
		h.UpdatedAt = now
		return nil
	})
}

// mutate is the single read-modify-write path for the hypotheses document.
// If fn fails nothing is written.
func (m *Manager) mutate(ctx context.Context, op, id string, fn func(h *domain.Hypothesis, now time.Time) error) (domain.Hypothesis, error) {
	book, version, err := m.store.LoadHypotheses(ctx)
	if err != nil {
		return domain.Hypothesis{}, fmt.Errorf("hypothesis.%s: load: %w", op, err)
	}
	current, ok := book.Items[id]
	if !ok {
		return domain.Hypothesis{}, domain.NotFoundf("hypothesis", id)
	}

	next := current.Clone()
	if err := fn(&next, m.now().UTC()); err != nil {
		return domain.Hypothesis{}, err
	}

	book.Items[id] = next
	if _, err := m.store.SaveHypotheses(ctx, book, version); err != nil {
		return domain.Hypothesis{}, fmt.Errorf("hypothesis.%s: save: %w", op, err)
	}
	if current.Status != next.Status {
		metrics.HypothesisTransitions.WithLabelValues(string(current.Status), string(next.Status)).Inc()
	}
	return next, nil
}

func (m *Manager) minSample(h domain.Hypothesis) int {
	if h.MinSampleSize > 0 {
		return h.MinSampleSize
	}
	return m.cfg.DefaultMinSampleSize
}
