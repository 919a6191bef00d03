package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Role es uno de los dos roles operativos que intercambian handoffs.
type Role string

const (
	// RoleTrader opera el portfolio y las hipótesis.
	RoleTrader Role = "trader"
	// RoleBuilder construye capacidades (datos, herramientas, fixes).
	RoleBuilder Role = "builder"
)

// Valid devuelve true para los dos roles fijos.
func (r Role) Valid() bool {
	return r == RoleTrader || r == RoleBuilder
}

// HandoffType clasifica la petición.
type HandoffType string

const (
	HandoffBuildCapability HandoffType = "build_capability"
	HandoffFixIssue        HandoffType = "fix_issue"
	HandoffAnalysisRequest HandoffType = "analysis_request"
	HandoffTradeExecution  HandoffType = "trade_execution"
)

// Valid devuelve true para los tipos conocidos.
func (t HandoffType) Valid() bool {
	switch t {
	case HandoffBuildCapability, HandoffFixIssue, HandoffAnalysisRequest, HandoffTradeExecution:
		return true
	}
	return false
}

// Priority es la prioridad de un handoff.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank devuelve un orden numérico (mayor = más urgente), 0 si es desconocida.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// Valid devuelve true para las cuatro prioridades.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// HandoffStatus avanza solo hacia adelante: pending → in_progress → done.
type HandoffStatus string

const (
	HandoffPending    HandoffStatus = "pending"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffDone       HandoffStatus = "done"
)

// Step devuelve la posición del estado en el flujo, 0 si es desconocido.
func (s HandoffStatus) Step() int {
	switch s {
	case HandoffPending:
		return 1
	case HandoffInProgress:
		return 2
	case HandoffDone:
		return 3
	}
	return 0
}

// Handoff es una petición de trabajo asíncrona entre roles.
type Handoff struct {
	ID        string          `json:"id"`
	From      Role            `json:"from"`
	To        Role            `json:"to"`
	Type      HandoffType     `json:"type"`
	Priority  Priority        `json:"priority"`
	Status    HandoffStatus   `json:"status"`
	Context   json.RawMessage `json:"context,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// HandoffQueue es el documento durable de handoffs, indexado por id.
type HandoffQueue struct {
	Items map[string]Handoff `json:"items"`
}

// NewHandoffQueue devuelve un documento vacío.
func NewHandoffQueue() HandoffQueue {
	return HandoffQueue{Items: make(map[string]Handoff)}
}

// Pending devuelve los handoffs pendientes dirigidos a role,
// ordenados por prioridad (desc) y antigüedad (asc).
func (q HandoffQueue) Pending(role Role) []Handoff {
	var out []Handoff
	for _, h := range q.Items {
		if h.To == role && h.Status == HandoffPending {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
