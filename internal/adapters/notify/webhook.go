package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

var _ ports.Notifier = (*Webhook)(nil)

// Colores de los embeds (formato Discord).
const (
	colorInfo     = 0x3498db
	colorWarning  = 0xe67e22
	colorApproval = 0xe74c3c
)

// Webhook envía alertas y solicitudes de aprobación a un webhook
// compatible con Discord (payload con "embeds").
type Webhook struct {
	url  string
	http *http.Client
}

// NewWebhook crea el notificador. timeout <= 0 usa 10s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, http: &http.Client{Timeout: timeout}}
}

type embed struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Footer      embedFooter `json:"footer"`
	Timestamp   string      `json:"timestamp"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Embeds []embed `json:"embeds"`
}

// Alert publica la alerta como un embed.
func (w *Webhook) Alert(ctx context.Context, a domain.Alert) error {
	color := colorInfo
	if a.Level == domain.AlertWarning {
		color = colorWarning
	}
	if err := w.post(ctx, a.Title, a.Message, color, a.At); err != nil {
		return fmt.Errorf("webhook.Alert: %w", err)
	}
	return nil
}

// RequestApproval publica el trade pendiente y devuelve su id.
func (w *Webhook) RequestApproval(ctx context.Context, req domain.ApprovalRequest) (string, error) {
	id := "apr-" + uuid.NewString()
	msg := fmt.Sprintf("%s %s $%s @ %s\nhypothesis: %s\napproval: %s",
		req.Direction, req.Market, req.Amount.StringFixed(2), req.Price.String(), req.HypothesisID, id)
	if req.Rationale != "" {
		msg += "\n" + req.Rationale
	}
	if err := w.post(ctx, "Approval required", msg, colorApproval, req.RequestedAt); err != nil {
		return "", fmt.Errorf("webhook.RequestApproval: %w", err)
	}
	return id, nil
}

func (w *Webhook) post(ctx context.Context, title, message string, color int, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	payload := webhookPayload{Embeds: []embed{{
		Title:       title,
		Description: message,
		Color:       color,
		Footer:      embedFooter{Text: "polydesk | paper trading"},
		Timestamp:   at.UTC().Format(time.RFC3339),
	}}}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
