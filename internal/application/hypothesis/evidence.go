package hypothesis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

const (
	maxImpact           = 0.5
	autoInvalidateBelow = 0.30
	autoValidateAbove   = 0.70

	// La confianza se guarda sin redondear; los umbrales toleran el ruido
	// de coma flotante (0.35-0.05 = 0.29999999999999993 no invalida).
	thresholdEpsilon = 1e-9
)

// Observation is the input to AddEvidence.
type Observation struct {
	Text     string
	Supports *bool // nil para observaciones neutrales
	Impact   float64
}

// EvidenceResult is the hypothesis after the append, plus the status it was
// auto-transitioned to (empty if none).
type EvidenceResult struct {
	Hypothesis     domain.Hypothesis
	AutoTransition domain.HypothesisStatus
}

// AddEvidence appends an observation, moves confidence by its impact and, for
// hypotheses under test, applies the auto-transition rules in the same write.
// When both rules could apply, invalidation wins.
func (m *Manager) AddEvidence(ctx context.Context, id string, obs Observation) (EvidenceResult, error) {
	if strings.TrimSpace(obs.Text) == "" {
		return EvidenceResult{}, domain.Validationf("observation is required")
	}
	if math.IsNaN(obs.Impact) || math.Abs(obs.Impact) > maxImpact {
		return EvidenceResult{}, domain.Validationf("confidenceImpact %v outside [-%.1f, %.1f]", obs.Impact, maxImpact, maxImpact)
	}

	var auto domain.HypothesisStatus
	h, err := m.mutate(ctx, "AddEvidence", id, func(h *domain.Hypothesis, now time.Time) error {
		h.Evidence = append(h.Evidence, domain.Evidence{
			Date:             now,
			Observation:      obs.Text,
			Supports:         obs.Supports,
			ConfidenceImpact: obs.Impact,
		})
		h.Confidence = domain.ClampConfidence(h.Confidence + obs.Impact)
		h.UpdatedAt = now

		if h.Status != domain.StatusTesting {
			return nil
		}
		target, reason := autoTarget(h.Confidence)
		if target == "" {
			return nil
		}
		if err := m.checkTransition(ctx, *h, target); err != nil {
			// Criterios incompletos: la evidencia se guarda sin transición.
			slog.Debug("auto-transition skipped", "id", h.ID, "target", target, "err", err)
			return nil
		}
		applyTransition(h, target, reason, now)
		auto = target
		return nil
	})
	if err != nil {
		return EvidenceResult{}, err
	}

	slog.Info("evidence added", "id", id, "confidence", h.Confidence, "status", h.Status)
	return EvidenceResult{Hypothesis: h, AutoTransition: auto}, nil
}

func autoTarget(confidence float64) (domain.HypothesisStatus, string) {
	switch {
	case confidence < autoInvalidateBelow-thresholdEpsilon:
		return domain.StatusInvalidated, fmt.Sprintf("auto: confidence %.4f below %.2f", confidence, autoInvalidateBelow)
	case confidence > autoValidateAbove+thresholdEpsilon:
		return domain.StatusValidated, fmt.Sprintf("auto: confidence %.4f above %.2f with criteria met", confidence, autoValidateAbove)
	}
	return "", ""
}
