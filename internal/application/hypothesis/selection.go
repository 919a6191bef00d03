package hypothesis

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Pesos del score de selección. Suman 1.
const (
	weightConfidence = 0.40
	weightEvidence   = 0.25
	weightTime       = 0.20
	weightStatus     = 0.15

	evidenceCountCap = 5
	recentWindow     = 7 * 24 * time.Hour
	closingWindow    = 72 * time.Hour
	staleProposed    = 48 * time.Hour
	maxAlternatives  = 5
	scoreEpsilon     = 1e-9
)

// Candidate is a scored hypothesis.
type Candidate struct {
	Hypothesis domain.Hypothesis `json:"hypothesis"`
	Score      float64           `json:"score"`
}

// Selection is the pick of SelectNext. Hypothesis is nil when nothing is eligible.
type Selection struct {
	Hypothesis   *domain.Hypothesis `json:"hypothesis"`
	Score        float64            `json:"score"`
	Alternatives []Candidate        `json:"alternatives"`
}

// SelectNext scores the proposed and testing hypotheses and returns the best
// one. markets supplies close dates for linked markets and may be nil.
func (m *Manager) SelectNext(ctx context.Context, markets map[string]domain.Market) (Selection, error) {
	book, _, err := m.store.LoadHypotheses(ctx)
	if err != nil {
		return Selection{}, fmt.Errorf("hypothesis.SelectNext: load: %w", err)
	}
	return Rank(book.Sorted(), markets, m.now().UTC()), nil
}

// Rank is the pure part of SelectNext.
func Rank(hyps []domain.Hypothesis, markets map[string]domain.Market, now time.Time) Selection {
	var cands []Candidate
	for _, h := range hyps {
		if h.Status != domain.StatusProposed && h.Status != domain.StatusTesting {
			continue
		}
		cands = append(cands, Candidate{Hypothesis: h, Score: Score(h, markets, now)})
	}
	if len(cands) == 0 {
		return Selection{Alternatives: []Candidate{}}
	}

	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		// Empate: la más antigua primero.
		if !a.Hypothesis.UpdatedAt.Equal(b.Hypothesis.UpdatedAt) {
			return a.Hypothesis.UpdatedAt.Before(b.Hypothesis.UpdatedAt)
		}
		return a.Hypothesis.ID < b.Hypothesis.ID
	})

	best := cands[0].Hypothesis
	alts := cands[1:]
	if len(alts) > maxAlternatives {
		alts = alts[:maxAlternatives]
	}
	return Selection{
		Hypothesis:   &best,
		Score:        cands[0].Score,
		Alternatives: append([]Candidate{}, alts...),
	}
}

// Score es la suma ponderada de confianza, evidencia, urgencia temporal y
// bonus de estado, cada componente en [0, 1].
func Score(h domain.Hypothesis, markets map[string]domain.Market, now time.Time) float64 {
	return weightConfidence*h.Confidence +
		weightEvidence*evidenceScore(h, now) +
		weightTime*timeScore(h, markets, now) +
		weightStatus*statusBonus(h, now)
}

func evidenceScore(h domain.Hypothesis, now time.Time) float64 {
	supporting := h.SupportingEvidence()
	if len(supporting) == 0 {
		return 0
	}
	recent := 0
	for _, e := range supporting {
		if now.Sub(e.Date) <= recentWindow {
			recent++
		}
	}
	count := math.Min(float64(len(supporting)), evidenceCountCap) / evidenceCountCap
	return 0.5*count + 0.5*float64(recent)/float64(len(supporting))
}

func timeScore(h domain.Hypothesis, markets map[string]domain.Market, now time.Time) float64 {
	if h.LinkedMarket == "" {
		return 0
	}
	mk, ok := markets[h.LinkedMarket]
	if !ok || !mk.ClosesWithin(now, closingWindow) {
		return 0
	}
	return 1 - mk.UntilClose(now).Hours()/closingWindow.Hours()
}

func statusBonus(h domain.Hypothesis, now time.Time) float64 {
	switch h.Status {
	case domain.StatusProposed:
		if h.Idle(now) > staleProposed {
			return 1
		}
	case domain.StatusTesting:
		return 0.5
	}
	return 0
}
