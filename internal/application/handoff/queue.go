// Package handoff implements the durable work-request queue between the
// trader and builder roles.
package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// Request describes a new handoff.
type Request struct {
	From     domain.Role
	To       domain.Role
	Type     domain.HandoffType
	Priority domain.Priority
	Context  json.RawMessage
}

// Queue creates and advances handoffs stored in a single document.
type Queue struct {
	store ports.HandoffStore
	now   func() time.Time
}

// New creates a queue backed by store.
func New(store ports.HandoffStore) *Queue {
	return &Queue{store: store, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Create validates req and appends a pending handoff.
func (q *Queue) Create(ctx context.Context, req Request) (domain.Handoff, error) {
	if req.Priority == "" {
		req.Priority = domain.PriorityMedium
	}
	if err := validateRequest(req); err != nil {
		return domain.Handoff{}, err
	}

	doc, version, err := q.store.LoadHandoffs(ctx)
	if err != nil {
		return domain.Handoff{}, fmt.Errorf("handoff.Create: load: %w", err)
	}

	now := q.now().UTC()
	h := domain.Handoff{
		ID:        "ho-" + uuid.NewString(),
		From:      req.From,
		To:        req.To,
		Type:      req.Type,
		Priority:  req.Priority,
		Status:    domain.HandoffPending,
		Context:   req.Context,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.Items[h.ID] = h
	if _, err := q.store.SaveHandoffs(ctx, doc, version); err != nil {
		return domain.Handoff{}, fmt.Errorf("handoff.Create: save: %w", err)
	}

	slog.Info("handoff created", "id", h.ID, "from", h.From, "to", h.To, "type", h.Type, "priority", h.Priority)
	return h, nil
}

// Get returns the handoff with id.
func (q *Queue) Get(ctx context.Context, id string) (domain.Handoff, error) {
	doc, _, err := q.store.LoadHandoffs(ctx)
	if err != nil {
		return domain.Handoff{}, fmt.Errorf("handoff.Get: load: %w", err)
	}
	h, ok := doc.Items[id]
	if !ok {
		return domain.Handoff{}, domain.NotFoundf("handoff", id)
	}
	return h, nil
}

// Pending returns pending handoffs addressed to role, most urgent first.
func (q *Queue) Pending(ctx context.Context, role domain.Role) ([]domain.Handoff, error) {
	if !role.Valid() {
		return nil, domain.Validationf("unknown role %q", role)
	}
	doc, _, err := q.store.LoadHandoffs(ctx)
	if err != nil {
		return nil, fmt.Errorf("handoff.Pending: load: %w", err)
	}
	return doc.Pending(role), nil
}

// Advance moves a handoff forward. Only the addressed role may consume it.
func (q *Queue) Advance(ctx context.Context, id string, role domain.Role, status domain.HandoffStatus) (domain.Handoff, error) {
	if status.Step() == 0 {
		return domain.Handoff{}, domain.Validationf("unknown handoff status %q", status)
	}

	doc, version, err := q.store.LoadHandoffs(ctx)
	if err != nil {
		return domain.Handoff{}, fmt.Errorf("handoff.Advance: load: %w", err)
	}
	h, ok := doc.Items[id]
	if !ok {
		return domain.Handoff{}, domain.NotFoundf("handoff", id)
	}
	if h.To != role {
		return domain.Handoff{}, domain.Validationf("handoff %s is addressed to %s, not %s", id, h.To, role)
	}
	if status.Step() <= h.Status.Step() {
		return domain.Handoff{}, domain.Transitionf("handoff %s cannot move from %s to %s", id, h.Status, status)
	}

	h.Status = status
	h.UpdatedAt = q.now().UTC()
	doc.Items[id] = h
	if _, err := q.store.SaveHandoffs(ctx, doc, version); err != nil {
		return domain.Handoff{}, fmt.Errorf("handoff.Advance: save: %w", err)
	}

	slog.Info("handoff advanced", "id", id, "status", status, "by", role)
	return h, nil
}

func validateRequest(req Request) error {
	if !req.From.Valid() || !req.To.Valid() {
		return domain.Validationf("unknown role (from=%q to=%q)", req.From, req.To)
	}
	if req.From == req.To {
		return domain.Validationf("handoff must cross roles, got %s → %s", req.From, req.To)
	}
	if !req.Type.Valid() {
		return domain.Validationf("unknown handoff type %q", req.Type)
	}
	if !req.Priority.Valid() {
		return domain.Validationf("unknown priority %q", req.Priority)
	}
	if len(req.Context) > 0 && !json.Valid(req.Context) {
		return domain.Validationf("handoff context is not valid JSON")
	}
	return nil
}
