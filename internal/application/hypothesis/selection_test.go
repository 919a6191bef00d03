package hypothesis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/application/hypothesis"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

func hyp(id string, status domain.HypothesisStatus, confidence float64, updated time.Time) domain.Hypothesis {
	return domain.Hypothesis{
		ID: id, Status: status, Confidence: confidence,
		CreatedAt: updated, UpdatedAt: updated,
	}
}

func TestRank_PrefersStaleProposed(t *testing.T) {
	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	stale := hyp("hyp-stale", domain.StatusProposed, 0.5, now.Add(-60*time.Hour))
	fresh := hyp("hyp-fresh", domain.StatusProposed, 0.5, now.Add(-10*time.Hour))

	sel := hypothesis.Rank([]domain.Hypothesis{fresh, stale}, nil, now)
	require.NotNil(t, sel.Hypothesis)
	assert.Equal(t, "hyp-stale", sel.Hypothesis.ID)
	require.Len(t, sel.Alternatives, 1)
	assert.Equal(t, "hyp-fresh", sel.Alternatives[0].Hypothesis.ID)
	assert.Greater(t, sel.Score, sel.Alternatives[0].Score)
}

func TestRank_TieGoesToOldest(t *testing.T) {
	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	older := hyp("hyp-b", domain.StatusTesting, 0.6, now.Add(-5*time.Hour))
	newer := hyp("hyp-a", domain.StatusTesting, 0.6, now.Add(-1*time.Hour))

	sel := hypothesis.Rank([]domain.Hypothesis{newer, older}, nil, now)
	require.NotNil(t, sel.Hypothesis)
	assert.Equal(t, "hyp-b", sel.Hypothesis.ID)
}

func TestRank_ExcludesTerminalAndBlocked(t *testing.T) {
	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	hyps := []domain.Hypothesis{
		hyp("hyp-v", domain.StatusValidated, 0.9, now),
		hyp("hyp-i", domain.StatusInvalidated, 0.1, now),
		hyp("hyp-b", domain.StatusBlocked, 0.8, now.Add(-100*time.Hour)),
	}
	sel := hypothesis.Rank(hyps, nil, now)
	assert.Nil(t, sel.Hypothesis)
	assert.Zero(t, sel.Score)
	assert.Empty(t, sel.Alternatives)
}

func TestRank_ClosingMarketBoostsScore(t *testing.T) {
	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	linked := hyp("hyp-linked", domain.StatusTesting, 0.5, now)
	linked.LinkedMarket = "0xclose"
	plain := hyp("hyp-plain", domain.StatusTesting, 0.5, now.Add(-time.Hour))

	markets := map[string]domain.Market{
		"0xclose": {ConditionID: "0xclose", EndDate: now.Add(18 * time.Hour)},
	}
	sel := hypothesis.Rank([]domain.Hypothesis{plain, linked}, markets, now)
	require.NotNil(t, sel.Hypothesis)
	assert.Equal(t, "hyp-linked", sel.Hypothesis.ID)
	// 0.40×0.5 + 0.20×(1−18/72) + 0.15×0.5
	assert.InDelta(t, 0.2+0.15+0.075, sel.Score, 1e-9)
}

func TestScore_EvidenceCountAndRecency(t *testing.T) {
	now := time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC)
	yes := true
	h := hyp("hyp-e", domain.StatusProposed, 0, now)
	h.Evidence = []domain.Evidence{
		{Date: now.Add(-24 * time.Hour), Supports: &yes},
		{Date: now.Add(-10 * 24 * time.Hour), Supports: &yes},
		{Date: now, Supports: nil},
	}
	// count 2/5×0.5 = 0.2, recency 1/2×0.5 = 0.25 → 0.45 × 0.25
	assert.InDelta(t, 0.25*0.45, hypothesis.Score(h, nil, now), 1e-9)
}

func TestSelectNext_LoadsFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sel, err := f.mgr.SelectNext(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, sel.Hypothesis)

	h := f.testable(t, 0.4)
	sel, err = f.mgr.SelectNext(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, sel.Hypothesis)
	assert.Equal(t, h.ID, sel.Hypothesis.ID)
}
