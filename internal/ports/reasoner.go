package ports

import (
	"context"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Reasoner es el agente de razonamiento externo. El core nunca decide qué
// tradear: solo le entrega tareas con su contexto y el agente vuelve a
// entrar por el protocolo de tools.
type Reasoner interface {
	Dispatch(ctx context.Context, task domain.Task) error
}
