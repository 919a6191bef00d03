package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

var t0 = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPosition_PnL(t *testing.T) {
	yes := domain.Position{Direction: domain.DirectionYes, EntryPrice: d("0.40"), Shares: d("250"), Cost: d("100")}
	no := domain.Position{Direction: domain.DirectionNo, EntryPrice: d("0.40"), Shares: d("250"), Cost: d("100")}

	assert.True(t, yes.PnL(d("0.50")).Equal(d("25")))
	assert.True(t, no.PnL(d("0.50")).Equal(d("-25")))
	assert.True(t, no.PnL(d("0.30")).Equal(d("25")))
	assert.True(t, yes.PnLPct(d("0.30")).Equal(d("-0.25")))

	assert.True(t, domain.Position{}.PnLPct(d("0.5")).IsZero())
}

func TestPortfolio_Aggregates(t *testing.T) {
	p := domain.NewPortfolio(d("10000"), t0)
	p.Cash = d("9700")
	p.Positions = []domain.Position{
		{ID: "a", Market: "m1", Direction: domain.DirectionYes, HypothesisID: "h1", Cost: d("200")},
		{ID: "b", Market: "m1", Direction: domain.DirectionNo, HypothesisID: "h1", Cost: d("50")},
		{ID: "c", Market: "m2", Direction: domain.DirectionYes, HypothesisID: "h2", Cost: d("50")},
	}

	assert.True(t, p.Invested().Equal(d("300")))
	assert.True(t, p.TotalValue().Equal(d("10000")))
	assert.True(t, p.Exposure("m1").Equal(d("250")))
	assert.True(t, p.Exposure("m3").IsZero())
	assert.Equal(t, 2, p.FindPosition("c"))
	assert.Equal(t, -1, p.FindPosition("zz"))
	assert.Equal(t, 1, p.MatchingPosition("m1", domain.DirectionNo, "h1"))
	assert.Equal(t, -1, p.MatchingPosition("m1", domain.DirectionNo, "h2"))
}

func TestPortfolio_CloneIsDeep(t *testing.T) {
	p := domain.NewPortfolio(d("1000"), t0)
	p.Positions = append(p.Positions, domain.Position{ID: "a"})

	c := p.Clone()
	c.Positions[0].ID = "changed"
	c.Trades = append(c.Trades, domain.Trade{ID: "t"})

	assert.Equal(t, "a", p.Positions[0].ID)
	assert.Empty(t, p.Trades)
}

func TestHypothesis_Helpers(t *testing.T) {
	assert.Equal(t, 0.0, domain.ClampConfidence(-0.2))
	assert.Equal(t, 1.0, domain.ClampConfidence(1.3))
	assert.Equal(t, 0.0, domain.ClampConfidence(math.NaN()))

	r := domain.TestResults{Wins: 3, Losses: 1}
	assert.Equal(t, 4, r.Trades())
	assert.InDelta(t, 0.75, r.WinRate(), 1e-9)
	assert.Equal(t, 0.0, domain.TestResults{}.WinRate())

	yes, no := true, false
	h := domain.Hypothesis{
		Evidence:  []domain.Evidence{{Supports: &yes}, {Supports: &no}, {Supports: nil}},
		Backtest:  &domain.Backtest{SampleSize: 20},
		UpdatedAt: t0,
	}
	assert.Len(t, h.SupportingEvidence(), 1)
	assert.Equal(t, 3*time.Hour, h.Idle(t0.Add(3*time.Hour)))
	assert.Equal(t, time.Duration(0), h.Idle(t0.Add(-time.Hour)))

	c := h.Clone()
	c.Evidence[0].Observation = "x"
	c.Backtest.SampleSize = 1
	assert.Empty(t, h.Evidence[0].Observation)
	assert.Equal(t, 20, h.Backtest.SampleSize)

	assert.True(t, domain.StatusValidated.Terminal())
	assert.False(t, domain.StatusBlocked.Terminal())
	assert.False(t, domain.HypothesisStatus("paused").Valid())
}

func TestHypothesisBook_SortedByCreation(t *testing.T) {
	b := domain.NewHypothesisBook()
	b.Items["b"] = domain.Hypothesis{ID: "b", CreatedAt: t0}
	b.Items["a"] = domain.Hypothesis{ID: "a", CreatedAt: t0}
	b.Items["c"] = domain.Hypothesis{ID: "c", CreatedAt: t0.Add(-time.Minute)}

	var ids []string
	for _, h := range b.Sorted() {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestHandoffQueue_PendingOrdering(t *testing.T) {
	q := domain.NewHandoffQueue()
	add := func(id string, to domain.Role, p domain.Priority, s domain.HandoffStatus, age time.Duration) {
		q.Items[id] = domain.Handoff{ID: id, To: to, Priority: p, Status: s, CreatedAt: t0.Add(-age)}
	}
	add("low-old", domain.RoleBuilder, domain.PriorityLow, domain.HandoffPending, 5*time.Hour)
	add("high-new", domain.RoleBuilder, domain.PriorityHigh, domain.HandoffPending, time.Hour)
	add("high-old", domain.RoleBuilder, domain.PriorityHigh, domain.HandoffPending, 2*time.Hour)
	add("critical-done", domain.RoleBuilder, domain.PriorityCritical, domain.HandoffDone, 0)
	add("trader", domain.RoleTrader, domain.PriorityCritical, domain.HandoffPending, 0)

	var ids []string
	for _, h := range q.Pending(domain.RoleBuilder) {
		ids = append(ids, h.ID)
	}
	assert.Equal(t, []string{"high-old", "high-new", "low-old"}, ids)

	assert.Less(t, domain.HandoffPending.Step(), domain.HandoffInProgress.Step())
	assert.Less(t, domain.HandoffInProgress.Step(), domain.HandoffDone.Step())
	assert.False(t, domain.Priority("urgent").Valid())
}

func TestMarket_UntilClose(t *testing.T) {
	m := domain.Market{EndDate: t0.Add(10 * time.Hour)}
	assert.Equal(t, 10*time.Hour, m.UntilClose(t0))
	assert.True(t, m.ClosesWithin(t0, 24*time.Hour))
	assert.False(t, m.ClosesWithin(t0, time.Hour))

	assert.Equal(t, time.Duration(0), m.UntilClose(t0.Add(11*time.Hour)))
	assert.Equal(t, time.Duration(-1), domain.Market{}.UntilClose(t0))
	assert.False(t, domain.Market{}.ClosesWithin(t0, 24*time.Hour))
}

func TestTruncateQuestion(t *testing.T) {
	assert.Equal(t, "short", domain.TruncateQuestion("short", "0x1", 10))
	assert.Equal(t, "a long ...", domain.TruncateQuestion("a long question", "0x1", 10))
	assert.Equal(t, "0x0123456789abcdef01...", domain.TruncateQuestion("", "0x0123456789abcdef0123456789", 40))
}

func TestKind(t *testing.T) {
	cases := map[string]error{
		"ValidationError":  domain.Validationf("amount must be positive"),
		"TransitionError":  domain.Transitionf("illegal transition: a -> b"),
		"NotFoundError":    domain.NotFoundf("position", "pos-1"),
		"ConcurrencyError": errors.Join(domain.ErrConcurrency),
		"PersistenceError": domain.Persistence("save", errors.New("disk gone")),
		"InternalError":    errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, domain.Kind(err), err.Error())
	}
	assert.Empty(t, domain.Kind(nil))

	err := domain.NotFoundf("position", "pos-1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, `not found: position "pos-1"`, err.Error())
}
