package handoff_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polydesk/internal/adapters/storage"
	"github.com/alejandrodnm/polydesk/internal/application/handoff"
	"github.com/alejandrodnm/polydesk/internal/domain"
)

func newQueue(t *testing.T) (*handoff.Queue, *time.Time) {
	t.Helper()
	docs, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { docs.Close() })

	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	q := handoff.New(storage.NewRepository(docs)).WithClock(func() time.Time { return now })
	return q, &now
}

func TestQueue_CreateAndPendingOrdering(t *testing.T) {
	q, now := newQueue(t)
	ctx := context.Background()

	low, err := q.Create(ctx, handoff.Request{
		From: domain.RoleTrader, To: domain.RoleBuilder,
		Type: domain.HandoffAnalysisRequest, Priority: domain.PriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffPending, low.Status)

	*now = now.Add(time.Minute)
	crit, err := q.Create(ctx, handoff.Request{
		From: domain.RoleTrader, To: domain.RoleBuilder,
		Type: domain.HandoffFixIssue, Priority: domain.PriorityCritical,
		Context: json.RawMessage(`{"issue":"price feed stale"}`),
	})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	_, err = q.Create(ctx, handoff.Request{
		From: domain.RoleBuilder, To: domain.RoleTrader, Type: domain.HandoffTradeExecution,
	})
	require.NoError(t, err)

	pending, err := q.Pending(ctx, domain.RoleBuilder)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, crit.ID, pending[0].ID)
	assert.Equal(t, low.ID, pending[1].ID)

	forTrader, err := q.Pending(ctx, domain.RoleTrader)
	require.NoError(t, err)
	require.Len(t, forTrader, 1)
	assert.Equal(t, domain.PriorityMedium, forTrader[0].Priority, "empty priority defaults to medium")
}

func TestQueue_CreateValidation(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  handoff.Request
	}{
		{"same role", handoff.Request{From: domain.RoleTrader, To: domain.RoleTrader, Type: domain.HandoffFixIssue}},
		{"unknown role", handoff.Request{From: "ops", To: domain.RoleTrader, Type: domain.HandoffFixIssue}},
		{"unknown type", handoff.Request{From: domain.RoleTrader, To: domain.RoleBuilder, Type: "deploy"}},
		{"unknown priority", handoff.Request{From: domain.RoleTrader, To: domain.RoleBuilder, Type: domain.HandoffFixIssue, Priority: "urgent"}},
		{"bad context", handoff.Request{From: domain.RoleTrader, To: domain.RoleBuilder, Type: domain.HandoffFixIssue, Context: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := q.Create(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestQueue_AdvanceOnlyByAddressedRole(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	h, err := q.Create(ctx, handoff.Request{
		From: domain.RoleTrader, To: domain.RoleBuilder, Type: domain.HandoffBuildCapability,
	})
	require.NoError(t, err)

	_, err = q.Advance(ctx, h.ID, domain.RoleTrader, domain.HandoffInProgress)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := q.Advance(ctx, h.ID, domain.RoleBuilder, domain.HandoffInProgress)
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffInProgress, got.Status)

	_, err = q.Advance(ctx, h.ID, domain.RoleBuilder, domain.HandoffPending)
	assert.ErrorIs(t, err, domain.ErrTransition)

	got, err = q.Advance(ctx, h.ID, domain.RoleBuilder, domain.HandoffDone)
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffDone, got.Status)

	pending, err := q.Pending(ctx, domain.RoleBuilder)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueue_NotFound(t *testing.T) {
	q, _ := newQueue(t)
	_, err := q.Advance(context.Background(), "ho-missing", domain.RoleBuilder, domain.HandoffDone)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = q.Get(context.Background(), "ho-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
