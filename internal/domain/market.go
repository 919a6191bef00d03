package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market es la metadata de un mercado binario que necesita el core:
// cuándo cierra y a qué precio cotiza YES.
type Market struct {
	ConditionID string
	Question    string
	Slug        string
	EndDate     time.Time // fecha de resolución, cero si no se conoce
	YesPrice    decimal.Decimal
	Active      bool
	Closed      bool
}

// UntilClose devuelve el tiempo que falta hasta EndDate.
// Devuelve -1 si EndDate no está definido y 0 si ya pasó.
func (m Market) UntilClose(now time.Time) time.Duration {
	if m.EndDate.IsZero() {
		return -1
	}
	d := m.EndDate.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ClosesWithin devuelve true si el mercado cierra (o ya cerró) dentro de window.
func (m Market) ClosesWithin(now time.Time, window time.Duration) bool {
	d := m.UntilClose(now)
	return d >= 0 && d <= window
}

// TruncateQuestion devuelve la pregunta del mercado truncada a maxLen caracteres.
// Si la pregunta está vacía usa los primeros caracteres del conditionID como fallback.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
