package domain

import "time"

// Task es lo que el scheduler despacha al agente de razonamiento externo:
// la señal (o responsabilidad) y un slice de contexto acotado.
type Task struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	Urgency    int            `json:"urgency"`
	Standing   bool           `json:"standing"` // true si no vino de una señal
	Context    map[string]any `json:"context"`
	Dispatched time.Time      `json:"dispatchedAt"`
}
