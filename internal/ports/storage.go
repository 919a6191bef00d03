package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Claves de los tres documentos durables.
const (
	KeyPortfolio  = "portfolio"
	KeyHypotheses = "hypotheses"
	KeyHandoffs   = "handoffs"
)

// Document es un documento durable versionado.
type Document struct {
	Key       string
	Version   int64
	Body      []byte
	UpdatedAt time.Time
}

// DocumentStore persiste documentos completos indexados por clave.
// Put es un compare-and-swap: si expectedVersion no coincide con la versión
// guardada devuelve domain.ErrConcurrency y no escribe nada.
type DocumentStore interface {
	// Get devuelve el documento o domain.ErrNotFound si no existe.
	Get(ctx context.Context, key string) (Document, error)

	// Put reemplaza el documento de forma atómica y devuelve la nueva versión.
	// expectedVersion == 0 significa "el documento no debe existir todavía".
	Put(ctx context.Context, key string, body []byte, expectedVersion int64) (int64, error)

	// Close libera los recursos del backend.
	Close() error
}

// PortfolioStore persiste el portfolio simulado.
type PortfolioStore interface {
	// LoadPortfolio devuelve domain.ErrNotFound si todavía no hubo bootstrap.
	LoadPortfolio(ctx context.Context) (domain.Portfolio, int64, error)
	SavePortfolio(ctx context.Context, p domain.Portfolio, expectedVersion int64) (int64, error)
}

// HypothesisStore persiste el libro de hipótesis. Un documento ausente se
// devuelve vacío con versión 0.
type HypothesisStore interface {
	LoadHypotheses(ctx context.Context) (domain.HypothesisBook, int64, error)
	SaveHypotheses(ctx context.Context, b domain.HypothesisBook, expectedVersion int64) (int64, error)
}

// HandoffStore persiste la cola de handoffs. Un documento ausente se devuelve
// vacío con versión 0.
type HandoffStore interface {
	LoadHandoffs(ctx context.Context) (domain.HandoffQueue, int64, error)
	SaveHandoffs(ctx context.Context, q domain.HandoffQueue, expectedVersion int64) (int64, error)
}
