package hypothesis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/adapters/storage"
	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/application/hypothesis"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

type fixture struct {
	mgr   *hypothesis.Manager
	queue *handoff.Queue
	store *storage.Repository
	now   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docs, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	repo := storage.NewRepository(docs)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	q := handoff.New(repo).WithClock(clock)
	m := hypothesis.New(repo, q, hypothesis.DefaultConfig()).WithClock(clock)
	return &fixture{mgr: m, queue: q, store: repo, now: &now}
}

func ptr[T any](v T) *T { return &v }

func (f *fixture) testable(t *testing.T, confidence float64) domain.Hypothesis {
	t.Helper()
	h, err := f.mgr.Create(context.Background(), hypothesis.Proposal{
		Statement:         "Favourites above 0.85 a day before close resolve YES",
		TestMethod:        "paper trade every qualifying market",
		EntryRules:        "yes price >= 0.85, < 24h to close",
		ExitRules:         "resolution or stop at 0.70",
		MinSampleSize:     4,
		InitialConfidence: ptr(confidence),
	})
	require.NoError(t, err)
	return h
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.mgr.Create(ctx, hypothesis.Proposal{Statement: "NO is overpriced on celebrity markets"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, h.Status)
	assert.Equal(t, 0.5, h.Confidence)
	assert.NotEmpty(t, h.ID)

	got, err := f.mgr.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, h.Statement, got.Statement)

	_, err = f.mgr.Create(ctx, hypothesis.Proposal{Statement: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.Create(ctx, hypothesis.Proposal{Statement: "x", InitialConfidence: ptr(1.2)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.mgr.Get(ctx, "hyp-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransition_ProposedToTestingNeedsRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bare, err := f.mgr.Create(ctx, hypothesis.Proposal{Statement: "bare"})
	require.NoError(t, err)
	_, err = f.mgr.Transition(ctx, bare.ID, domain.StatusTesting, "start")
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.Contains(t, err.Error(), domain.MsgPreconditionNotMet)

	got, err := f.mgr.Get(ctx, bare.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProposed, got.Status, "failed precondition must not write")

	h := f.testable(t, 0.5)
	*f.now = f.now.Add(time.Hour)
	moved, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "rules ready")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTesting, moved.Status)
	assert.Equal(t, "rules ready", moved.StatusReason)
	assert.Equal(t, *f.now, moved.UpdatedAt)
}

func TestTransition_IllegalEdges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.testable(t, 0.5)

	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusValidated, "skip ahead")
	require.ErrorIs(t, err, domain.ErrTransition)
	assert.Contains(t, err.Error(), domain.MsgIllegalTransition)

	_, err = f.mgr.Transition(ctx, h.ID, "archived", "")
	assert.ErrorIs(t, err, domain.ErrTransition)

	_, err = f.mgr.Transition(ctx, h.ID, domain.StatusBlocked, "manual block")
	assert.ErrorIs(t, err, domain.ErrValidation, "blocking goes through Block")
}

func TestTransition_ValidateAndInvalidatePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.6)
	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	_, err = f.mgr.Transition(ctx, h.ID, domain.StatusValidated, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "no trades yet")

	for _, won := range []bool{true, true, true, false} {
		_, err = f.mgr.RecordTradeResult(ctx, h.ID, won, 10)
		require.NoError(t, err)
	}
	_, err = f.mgr.Transition(ctx, h.ID, domain.StatusInvalidated, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "confidence 0.6 and winRate 0.75")

	v, err := f.mgr.Transition(ctx, h.ID, domain.StatusValidated, "4 trades, 75% win rate")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, v.Status)
	assert.Equal(t, 4, v.TestResults.Trades())
	assert.InDelta(t, 40.0, v.TestResults.PnL, 1e-9)
}

func TestTransition_TerminalReplayIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.32)
	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "")
	require.NoError(t, err)
	_, err = f.mgr.Transition(ctx, h.ID, domain.StatusInvalidated, "weak")
	require.NoError(t, err)
	before, err := f.mgr.Get(ctx, h.ID)
	require.NoError(t, err)

	_, err1 := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "retry")
	_, err2 := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "retry")
	require.Error(t, err1)
	assert.Equal(t, err1.Error(), err2.Error())
	assert.ErrorIs(t, err2, domain.ErrTransition)

	_, _, err = f.mgr.Block(ctx, h.ID, "more data", domain.PriorityLow)
	assert.ErrorIs(t, err, domain.ErrTransition, "terminal hypotheses cannot be blocked")
	pending, err := f.queue.Pending(ctx, domain.RoleBuilder)
	require.NoError(t, err)
	assert.Empty(t, pending)

	after, err := f.mgr.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAddEvidence_AutoInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.32)
	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	res, err := f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{
		Text: "favourite lost at 0.88", Supports: ptr(false), Impact: -0.05,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.27, res.Hypothesis.Confidence, 1e-12)
	assert.Equal(t, domain.StatusInvalidated, res.Hypothesis.Status)
	assert.Equal(t, domain.StatusInvalidated, res.AutoTransition)
	require.Len(t, res.Hypothesis.Evidence, 1)

	// Terminal: acepta evidencia, no vuelve a transicionar.
	res, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "late win", Supports: ptr(true), Impact: 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.77, res.Hypothesis.Confidence, 1e-12)
	assert.Equal(t, domain.StatusInvalidated, res.Hypothesis.Status)
	assert.Empty(t, res.AutoTransition)
	assert.Len(t, res.Hypothesis.Evidence, 2)
}

func TestAddEvidence_ExactSumAtThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	edge := f.testable(t, 0.30)
	_, err := f.mgr.Transition(ctx, edge.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	res, err := f.mgr.AddEvidence(ctx, edge.ID, hypothesis.Observation{Text: "tiny miss", Supports: ptr(false), Impact: -0.00004})
	require.NoError(t, err)
	assert.InDelta(t, 0.29996, res.Hypothesis.Confidence, 1e-12)
	assert.Less(t, res.Hypothesis.Confidence, 0.30)
	assert.Equal(t, domain.StatusInvalidated, res.Hypothesis.Status)
	assert.Equal(t, domain.StatusInvalidated, res.AutoTransition)

	// 0.35-0.05 cae en 0.29999999999999993: es 0.30, no invalida.
	noise := f.testable(t, 0.35)
	_, err = f.mgr.Transition(ctx, noise.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	res, err = f.mgr.AddEvidence(ctx, noise.ID, hypothesis.Observation{Text: "small miss", Supports: ptr(false), Impact: -0.05})
	require.NoError(t, err)
	assert.InDelta(t, 0.30, res.Hypothesis.Confidence, 1e-12)
	assert.Equal(t, domain.StatusTesting, res.Hypothesis.Status)
	assert.Empty(t, res.AutoTransition)
}

func TestAddEvidence_AutoValidateNeedsCriteria(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.65)
	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	res, err := f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "strong", Supports: ptr(true), Impact: 0.1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTesting, res.Hypothesis.Status, "no trades recorded yet")
	assert.Empty(t, res.AutoTransition)

	for i := 0; i < 4; i++ {
		_, err = f.mgr.RecordTradeResult(ctx, h.ID, true, 5)
		require.NoError(t, err)
	}
	res, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "another", Supports: ptr(true), Impact: 0.01})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusValidated, res.Hypothesis.Status)
	assert.Equal(t, domain.StatusValidated, res.AutoTransition)
}

func TestAddEvidence_ClampsAndValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.testable(t, 0.9)

	res, err := f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "up", Impact: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Hypothesis.Confidence)

	for i := 0; i < 3; i++ {
		res, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "down", Impact: -0.5})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Hypothesis.Confidence, 0.0)
		assert.LessOrEqual(t, res.Hypothesis.Confidence, 1.0)
	}
	assert.Equal(t, 0.0, res.Hypothesis.Confidence)
	assert.Equal(t, domain.StatusProposed, res.Hypothesis.Status, "proposed never auto-transitions")

	_, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "too much", Impact: 0.51})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Impact: 0.1})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.mgr.AddEvidence(ctx, "hyp-missing", hypothesis.Observation{Text: "x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBlockAndUnblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.testable(t, 0.5)

	blocked, ho, err := f.mgr.Block(ctx, h.ID, "order book depth feed", domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, blocked.Status)
	assert.Equal(t, ho.ID, blocked.BlockedHandoffID)
	assert.Equal(t, domain.HandoffBuildCapability, ho.Type)
	assert.Equal(t, domain.RoleBuilder, ho.To)

	pending, err := f.queue.Pending(ctx, domain.RoleBuilder)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = f.mgr.Transition(ctx, h.ID, domain.StatusProposed, "")
	assert.ErrorIs(t, err, domain.ErrValidation, "handoff still pending")

	_, err = f.queue.Advance(ctx, ho.ID, domain.RoleBuilder, domain.HandoffDone)
	require.NoError(t, err)

	back, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "feed shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTesting, back.Status)
	assert.Empty(t, back.BlockedHandoffID)
	assert.Empty(t, back.BlockedReason)

	// Blocked → blocked no existe en la tabla, y no debe crear handoff.
	_, _, err = f.mgr.Block(ctx, h.ID, "x", domain.PriorityLow)
	require.NoError(t, err)
	_, _, err = f.mgr.Block(ctx, h.ID, "y", domain.PriorityLow)
	assert.ErrorIs(t, err, domain.ErrTransition)
	pending, err = f.queue.Pending(ctx, domain.RoleBuilder)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// racingQueue invalida la hipótesis mientras se crea el handoff, como haría
// otro proceso escribiendo entre el chequeo de Block y su escritura.
type racingQueue struct {
	*handoff.Queue
	mgr *hypothesis.Manager
	id  string
}

func (q racingQueue) Create(ctx context.Context, req handoff.Request) (domain.Handoff, error) {
	ho, err := q.Queue.Create(ctx, req)
	if err != nil {
		return ho, err
	}
	_, err = q.mgr.Transition(ctx, q.id, domain.StatusInvalidated, "weak")
	return ho, err
}

func TestBlock_ChangedUnderneathReportsHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.32)
	_, err := f.mgr.Transition(ctx, h.ID, domain.StatusTesting, "")
	require.NoError(t, err)

	racing := hypothesis.New(f.store, racingQueue{Queue: f.queue, mgr: f.mgr, id: h.ID}, hypothesis.DefaultConfig())
	_, ho, err := racing.Block(ctx, h.ID, "resolution feed", domain.PriorityMedium)
	require.ErrorIs(t, err, domain.ErrTransition)
	require.NotEmpty(t, ho.ID)
	assert.Contains(t, err.Error(), ho.ID)

	got, err := f.mgr.Get(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInvalidated, got.Status)
	assert.Empty(t, got.BlockedHandoffID)
}

func TestHasTradeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h := f.testable(t, 0.5)
	v, err := f.mgr.HasTradeValidation(ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, v.Validated)
	assert.NotEmpty(t, v.Reason)

	for i := 0; i < 3; i++ {
		_, err = f.mgr.AddEvidence(ctx, h.ID, hypothesis.Observation{Text: "ok", Supports: ptr(true), Impact: 0.01})
		require.NoError(t, err)
	}
	v, err = f.mgr.HasTradeValidation(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, v.Validated)

	other := f.testable(t, 0.1)
	_, err = f.mgr.RecordBacktest(ctx, other.ID, domain.Backtest{SampleSize: 4, WinRate: 0.6, PnL: 12})
	require.NoError(t, err)
	v, err = f.mgr.HasTradeValidation(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, v.Validated, "backtest sample meets minSampleSize")

	_, err = f.mgr.RecordBacktest(ctx, other.ID, domain.Backtest{SampleSize: 0})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLinkMarketAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.testable(t, 0.5)
	*f.now = f.now.Add(time.Minute)
	b := f.testable(t, 0.5)

	_, err := f.mgr.LinkMarket(ctx, b.ID, "0xabc")
	require.NoError(t, err)
	_, err = f.mgr.LinkMarket(ctx, b.ID, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	all, err := f.mgr.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, "0xabc", all[1].LinkedMarket)
}
