package hypothesis

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Validation is the answer of HasTradeValidation.
type Validation struct {
	Validated bool   `json:"validated"`
	Reason    string `json:"reason"`
}

// HasTradeValidation reports whether the hypothesis has enough support to
// back trades above the auto tier.
func (m *Manager) HasTradeValidation(ctx context.Context, id string) (Validation, error) {
	h, err := m.Get(ctx, id)
	if err != nil {
		return Validation{}, err
	}
	return m.Evaluate(h), nil
}

// Evaluate applies the validation gate to an already loaded hypothesis.
func (m *Manager) Evaluate(h domain.Hypothesis) Validation {
	need := m.minSample(h)
	supporting := len(h.SupportingEvidence())

	if supporting >= m.cfg.MinEvidence && h.Confidence >= m.cfg.MinEvidenceConfidence {
		return Validation{true, fmt.Sprintf("%d supporting observations at confidence %.2f", supporting, h.Confidence)}
	}
	if trades := h.TestResults.Trades(); trades >= need {
		return Validation{true, fmt.Sprintf("%d recorded trades (min %d)", trades, need)}
	}
	if h.Backtest != nil && h.Backtest.SampleSize >= need {
		return Validation{true, fmt.Sprintf("backtest over %d samples (min %d)", h.Backtest.SampleSize, need)}
	}
	return Validation{false, fmt.Sprintf(
		"%d/%d supporting observations at confidence %.2f (min %.2f), %d/%d trades, no sufficient backtest",
		supporting, m.cfg.MinEvidence, h.Confidence, m.cfg.MinEvidenceConfidence, h.TestResults.Trades(), need)}
}
