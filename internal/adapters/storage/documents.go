package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

// Repository expone los tres documentos tipados sobre cualquier DocumentStore.
// Implementa ports.PortfolioStore, ports.HypothesisStore y ports.HandoffStore.
type Repository struct {
	docs ports.DocumentStore
}

var (
	_ ports.PortfolioStore  = (*Repository)(nil)
	_ ports.HypothesisStore = (*Repository)(nil)
	_ ports.HandoffStore    = (*Repository)(nil)
)

// NewRepository envuelve un backend de documentos.
func NewRepository(docs ports.DocumentStore) *Repository {
	return &Repository{docs: docs}
}

// Close cierra el backend.
func (r *Repository) Close() error {
	return r.docs.Close()
}

// LoadPortfolio devuelve domain.ErrNotFound antes del bootstrap.
func (r *Repository) LoadPortfolio(ctx context.Context) (domain.Portfolio, int64, error) {
	var p domain.Portfolio
	version, err := r.load(ctx, ports.KeyPortfolio, &p)
	if err != nil {
		return domain.Portfolio{}, 0, err
	}
	if p.Positions == nil {
		p.Positions = []domain.Position{}
	}
	if p.Trades == nil {
		p.Trades = []domain.Trade{}
	}
	return p, version, nil
}

// SavePortfolio escribe el portfolio completo.
func (r *Repository) SavePortfolio(ctx context.Context, p domain.Portfolio, expectedVersion int64) (int64, error) {
	return r.save(ctx, ports.KeyPortfolio, p, expectedVersion)
}

// LoadHypotheses devuelve un libro vacío (versión 0) si no existe.
func (r *Repository) LoadHypotheses(ctx context.Context) (domain.HypothesisBook, int64, error) {
	book := domain.NewHypothesisBook()
	version, err := r.load(ctx, ports.KeyHypotheses, &book)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewHypothesisBook(), 0, nil
	}
	if err != nil {
		return domain.HypothesisBook{}, 0, err
	}
	if book.Items == nil {
		book.Items = make(map[string]domain.Hypothesis)
	}
	return book, version, nil
}

// SaveHypotheses escribe el libro completo.
func (r *Repository) SaveHypotheses(ctx context.Context, b domain.HypothesisBook, expectedVersion int64) (int64, error) {
	return r.save(ctx, ports.KeyHypotheses, b, expectedVersion)
}

// LoadHandoffs devuelve una cola vacía (versión 0) si no existe.
func (r *Repository) LoadHandoffs(ctx context.Context) (domain.HandoffQueue, int64, error) {
	q := domain.NewHandoffQueue()
	version, err := r.load(ctx, ports.KeyHandoffs, &q)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewHandoffQueue(), 0, nil
	}
	if err != nil {
		return domain.HandoffQueue{}, 0, err
	}
	if q.Items == nil {
		q.Items = make(map[string]domain.Handoff)
	}
	return q, version, nil
}

// SaveHandoffs escribe la cola completa.
func (r *Repository) SaveHandoffs(ctx context.Context, q domain.HandoffQueue, expectedVersion int64) (int64, error) {
	return r.save(ctx, ports.KeyHandoffs, q, expectedVersion)
}

func (r *Repository) load(ctx context.Context, key string, into any) (int64, error) {
	doc, err := r.docs.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(doc.Body, into); err != nil {
		return 0, domain.Persistence("storage.Repository: decode "+key, err)
	}
	return doc.Version, nil
}

func (r *Repository) save(ctx context.Context, key string, v any, expectedVersion int64) (int64, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("storage.Repository: encode %s: %w", key, err)
	}
	return r.docs.Put(ctx, key, body, expectedVersion)
}
