package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

var (
	_ ports.Reasoner = (*HTTP)(nil)
	_ ports.Reasoner = Log{}
)

// Un dispatch por segundo como máximo; el agente tarda mucho más que eso.
const dispatchRatePerSec = 1

// HTTP entrega cada tarea al agente externo con un POST JSON.
// El agente responde 2xx al aceptarla y vuelve a entrar por el protocolo de tools.
type HTTP struct {
	url     string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTP crea el dispatcher. timeout <= 0 usa 30s.
func NewHTTP(url string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(dispatchRatePerSec, 1),
	}
}

// Dispatch envía la tarea. Un status >= 400 es un error.
func (h *HTTP) Dispatch(ctx context.Context, task domain.Task) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("reasoner.Dispatch: rate limiter: %w", err)
	}

	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("reasoner.Dispatch: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reasoner.Dispatch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Task-ID", task.ID)

	resp, err := h.http.Do(req)
	if err != nil {
		return fmt.Errorf("reasoner.Dispatch: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("reasoner.Dispatch: agent returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	slog.Info("task dispatched", "task", task.ID, "action", task.Action, "urgency", task.Urgency)
	return nil
}

// Log solo registra la tarea. Se usa cuando no hay agente configurado.
type Log struct{}

// Dispatch loguea la tarea y su contexto.
func (Log) Dispatch(_ context.Context, task domain.Task) error {
	slog.Info("task ready (no reasoner configured)",
		"task", task.ID,
		"action", task.Action,
		"urgency", task.Urgency,
		"standing", task.Standing,
		"context", task.Context,
	)
	return nil
}
