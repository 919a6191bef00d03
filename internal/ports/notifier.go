package ports

import (
	"context"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// Notifier es el gateway de notificaciones hacia el humano en el loop.
type Notifier interface {
	// Alert entrega un mensaje informativo (p.ej. trade en tier notify).
	Alert(ctx context.Context, alert domain.Alert) error

	// RequestApproval registra una aprobación pendiente y devuelve su id.
	RequestApproval(ctx context.Context, req domain.ApprovalRequest) (string, error)
}
