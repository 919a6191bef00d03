package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

var _ ports.Notifier = (*Multi)(nil)

// Multi reparte cada notificación entre un notificador primario y sus
// espejos. El primario es el dueño de las aprobaciones: su id es el que
// se devuelve; los espejos solo reciben una alerta equivalente.
type Multi struct {
	primary ports.Notifier
	mirrors []ports.Notifier
}

// NewMulti crea el fan-out. Los espejos nil se ignoran.
func NewMulti(primary ports.Notifier, mirrors ...ports.Notifier) *Multi {
	m := &Multi{primary: primary}
	for _, n := range mirrors {
		if n != nil {
			m.mirrors = append(m.mirrors, n)
		}
	}
	return m
}

// Alert entrega a todos. Devuelve los errores unidos.
func (m *Multi) Alert(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, n := range append([]ports.Notifier{m.primary}, m.mirrors...) {
		if err := n.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RequestApproval registra en el primario y avisa a los espejos.
// Un fallo de un espejo no invalida la aprobación.
func (m *Multi) RequestApproval(ctx context.Context, req domain.ApprovalRequest) (string, error) {
	id, err := m.primary.RequestApproval(ctx, req)
	if err != nil {
		return "", err
	}
	alert := domain.Alert{
		Level: domain.AlertWarning,
		Title: "Approval required",
		Message: fmt.Sprintf("%s %s $%s @ %s (hyp %s) id=%s",
			req.Direction, req.Market, req.Amount.StringFixed(2), req.Price.String(), req.HypothesisID, id),
		At: req.RequestedAt,
	}
	for _, n := range m.mirrors {
		if err := n.Alert(ctx, alert); err != nil {
			slog.Warn("approval mirror failed", "approval", id, "err", err)
		}
	}
	return id, nil
}
