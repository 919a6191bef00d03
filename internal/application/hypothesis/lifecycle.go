package hypothesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Umbrales de las transiciones manuales.
const (
	validateMinConfidence   = 0.55
	validateMinWinRate      = 0.50
	invalidateMaxConfidence = 0.35
	invalidateMaxWinRate    = 0.40
)

// edges es la tabla de transiciones. Cualquier par ausente es ilegal.
var edges = map[domain.HypothesisStatus][]domain.HypothesisStatus{
	domain.StatusProposed: {domain.StatusTesting, domain.StatusBlocked},
	domain.StatusTesting:  {domain.StatusValidated, domain.StatusInvalidated, domain.StatusBlocked},
	domain.StatusBlocked:  {domain.StatusProposed, domain.StatusTesting},
}

func legal(from, to domain.HypothesisStatus) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the hypothesis to target if the edge exists and its
// precondition holds. Status, reason and updatedAt are written together.
func (m *Manager) Transition(ctx context.Context, id string, target domain.HypothesisStatus, reason string) (domain.Hypothesis, error) {
	h, err := m.mutate(ctx, "Transition", id, func(h *domain.Hypothesis, now time.Time) error {
		if err := m.checkTransition(ctx, *h, target); err != nil {
			return err
		}
		applyTransition(h, target, reason, now)
		return nil
	})
	if err != nil {
		return domain.Hypothesis{}, err
	}
	slog.Info("hypothesis transitioned", "id", id, "status", h.Status, "reason", h.StatusReason)
	return h, nil
}

// Block creates a build_capability handoff for the builder role and moves
// the hypothesis to blocked, remembering the handoff id.
func (m *Manager) Block(ctx context.Context, id, capability string, priority domain.Priority) (domain.Hypothesis, domain.Handoff, error) {
	if strings.TrimSpace(capability) == "" {
		return domain.Hypothesis{}, domain.Handoff{}, domain.Validationf("capability is required")
	}

	current, err := m.Get(ctx, id)
	if err != nil {
		return domain.Hypothesis{}, domain.Handoff{}, err
	}
	// La legalidad se comprueba antes de crear el handoff para no dejarlo huérfano.
	if !legal(current.Status, domain.StatusBlocked) {
		return domain.Hypothesis{}, domain.Handoff{}, illegal(current.Status, domain.StatusBlocked)
	}

	payload, err := json.Marshal(map[string]string{
		"hypothesisId": id,
		"statement":    current.Statement,
		"capability":   capability,
	})
	if err != nil {
		return domain.Hypothesis{}, domain.Handoff{}, fmt.Errorf("hypothesis.Block: marshal context: %w", err)
	}
	ho, err := m.handoffs.Create(ctx, handoff.Request{
		From:     domain.RoleTrader,
		To:       domain.RoleBuilder,
		Type:     domain.HandoffBuildCapability,
		Priority: priority,
		Context:  payload,
	})
	if err != nil {
		return domain.Hypothesis{}, domain.Handoff{}, fmt.Errorf("hypothesis.Block: %w", err)
	}

	h, err := m.mutate(ctx, "Block", id, func(h *domain.Hypothesis, now time.Time) error {
		h.BlockedReason = capability
		h.BlockedHandoffID = ho.ID
		if err := m.checkTransition(ctx, *h, domain.StatusBlocked); err != nil {
			return err
		}
		applyTransition(h, domain.StatusBlocked, "blocked: needs "+capability, now)
		return nil
	})
	if err != nil {
		// La hipótesis cambió entre el chequeo y la escritura: el handoff
		// ya existe y queda pendiente sin hipótesis bloqueada.
		slog.Warn("orphaned capability handoff", "handoff", ho.ID, "hypothesis", id, "err", err)
		return domain.Hypothesis{}, ho, fmt.Errorf("hypothesis.Block: handoff %s created but hypothesis not blocked: %w", ho.ID, err)
	}
	slog.Info("hypothesis blocked", "id", id, "handoff", ho.ID, "capability", capability)
	return h, ho, nil
}

// checkTransition es el único punto que decide si (from, to) es legal para h.
// Lo usan tanto las llamadas manuales como las auto-transiciones de evidencia.
func (m *Manager) checkTransition(ctx context.Context, h domain.Hypothesis, to domain.HypothesisStatus) error {
	from := h.Status
	if !legal(from, to) {
		return illegal(from, to)
	}

	switch to {
	case domain.StatusTesting:
		if from == domain.StatusBlocked {
			if err := m.handoffResolved(ctx, h); err != nil {
				return err
			}
		}
		var missing []string
		if strings.TrimSpace(h.TestMethod) == "" {
			missing = append(missing, "testMethod")
		}
		if strings.TrimSpace(h.EntryRules) == "" {
			missing = append(missing, "entryRules")
		}
		if strings.TrimSpace(h.ExitRules) == "" {
			missing = append(missing, "exitRules")
		}
		if len(missing) > 0 {
			return unmet("missing %s", strings.Join(missing, ", "))
		}

	case domain.StatusProposed:
		return m.handoffResolved(ctx, h)

	case domain.StatusValidated:
		trades := h.TestResults.Trades()
		if h.Confidence <= validateMinConfidence {
			return unmet("confidence %.4f must be > %.2f", h.Confidence, validateMinConfidence)
		}
		if need := m.minSample(h); trades < need {
			return unmet("%d trades, need %d", trades, need)
		}
		if wr := h.TestResults.WinRate(); wr <= validateMinWinRate {
			return unmet("win rate %.4f must be > %.2f", wr, validateMinWinRate)
		}

	case domain.StatusInvalidated:
		if h.Confidence < invalidateMaxConfidence {
			return nil
		}
		if h.TestResults.Trades() >= m.minSample(h) && h.TestResults.WinRate() < invalidateMaxWinRate {
			return nil
		}
		return unmet("confidence %.4f >= %.2f and win rate not below %.2f over a full sample",
			h.Confidence, invalidateMaxConfidence, invalidateMaxWinRate)

	case domain.StatusBlocked:
		if h.BlockedHandoffID == "" {
			return unmet("blocking requires a capability handoff")
		}
	}
	return nil
}

func (m *Manager) handoffResolved(ctx context.Context, h domain.Hypothesis) error {
	if h.BlockedHandoffID == "" {
		return nil
	}
	ho, err := m.handoffs.Get(ctx, h.BlockedHandoffID)
	if errors.Is(err, domain.ErrNotFound) {
		return unmet("blocking handoff %s no longer exists", h.BlockedHandoffID)
	}
	if err != nil {
		return fmt.Errorf("hypothesis: load handoff: %w", err)
	}
	if ho.Status != domain.HandoffDone {
		return unmet("blocking handoff %s is %s", ho.ID, ho.Status)
	}
	return nil
}

func applyTransition(h *domain.Hypothesis, to domain.HypothesisStatus, reason string, now time.Time) {
	if h.Status == domain.StatusBlocked {
		h.BlockedReason = ""
		h.BlockedHandoffID = ""
	}
	if strings.TrimSpace(reason) == "" {
		reason = string(h.Status) + " -> " + string(to)
	}
	h.Status = to
	h.StatusReason = reason
	h.UpdatedAt = now
}

func illegal(from, to domain.HypothesisStatus) error {
	return domain.Transitionf("%s: %s -> %s", domain.MsgIllegalTransition, from, to)
}

func unmet(format string, args ...any) error {
	return domain.Validationf("%s: %s", domain.MsgPreconditionNotMet, fmt.Sprintf(format, args...))
}
