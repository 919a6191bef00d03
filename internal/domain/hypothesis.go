package domain

import (
	"math"
	"sort"
	"time"
)

// HypothesisStatus es el estado del ciclo de vida de una hipótesis.
type HypothesisStatus string

const (
	StatusProposed    HypothesisStatus = "proposed"
	StatusTesting     HypothesisStatus = "testing"
	StatusValidated   HypothesisStatus = "validated"
	StatusInvalidated HypothesisStatus = "invalidated"
	StatusBlocked     HypothesisStatus = "blocked"
)

// Valid devuelve true para los cinco estados conocidos.
func (s HypothesisStatus) Valid() bool {
	switch s {
	case StatusProposed, StatusTesting, StatusValidated, StatusInvalidated, StatusBlocked:
		return true
	}
	return false
}

// Terminal devuelve true para validated/invalidated. Siguen aceptando evidencia.
func (s HypothesisStatus) Terminal() bool {
	return s == StatusValidated || s == StatusInvalidated
}

// Evidence es una observación append-only sobre una hipótesis.
// Supports es nil cuando la observación es neutral.
type Evidence struct {
	Date             time.Time `json:"date"`
	Observation      string    `json:"observation"`
	Supports         *bool     `json:"supports"`
	ConfidenceImpact float64   `json:"confidenceImpact"`
}

// TestResults acumula el resultado de los trades ligados a la hipótesis.
type TestResults struct {
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	PnL    float64 `json:"pnl"`
}

// Trades devuelve wins + losses.
func (r TestResults) Trades() int {
	return r.Wins + r.Losses
}

// WinRate devuelve wins / trades, o 0 sin trades.
func (r TestResults) WinRate() float64 {
	n := r.Trades()
	if n == 0 {
		return 0
	}
	return float64(r.Wins) / float64(n)
}

// Backtest es un resultado de backtest registrado externamente.
type Backtest struct {
	SampleSize int       `json:"sampleSize"`
	WinRate    float64   `json:"winRate"`
	PnL        float64   `json:"pnl"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Hypothesis es una tesis de trading falsable con ciclo de vida y confianza.
type Hypothesis struct {
	ID               string           `json:"id"`
	Statement        string           `json:"statement"`
	Status           HypothesisStatus `json:"status"`
	Confidence       float64          `json:"confidence"`
	Evidence         []Evidence       `json:"evidence"`
	TestResults      TestResults      `json:"testResults"`
	Backtest         *Backtest        `json:"backtest,omitempty"`
	TestMethod       string           `json:"testMethod"`
	EntryRules       string           `json:"entryRules"`
	ExitRules        string           `json:"exitRules"`
	MinSampleSize    int              `json:"minSampleSize"`
	ExpectedWinRate  float64          `json:"expectedWinRate"`
	LinkedMarket     string           `json:"linkedMarket,omitempty"`
	BlockedReason    string           `json:"blockedReason,omitempty"`
	BlockedHandoffID string           `json:"blockedHandoffId,omitempty"`
	StatusReason     string           `json:"statusReason"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// ClampConfidence limita c a [0, 1].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

// SupportingEvidence devuelve las observaciones con supports == true.
func (h Hypothesis) SupportingEvidence() []Evidence {
	var out []Evidence
	for _, e := range h.Evidence {
		if e.Supports != nil && *e.Supports {
			out = append(out, e)
		}
	}
	return out
}

// Idle devuelve cuánto tiempo lleva la hipótesis sin cambios.
func (h Hypothesis) Idle(now time.Time) time.Duration {
	if h.UpdatedAt.IsZero() || now.Before(h.UpdatedAt) {
		return 0
	}
	return now.Sub(h.UpdatedAt)
}

// Clone devuelve una copia con su propio slice de evidencia.
func (h Hypothesis) Clone() Hypothesis {
	c := h
	c.Evidence = append([]Evidence{}, h.Evidence...)
	if h.Backtest != nil {
		bt := *h.Backtest
		c.Backtest = &bt
	}
	return c
}

// HypothesisBook es el documento durable de hipótesis, indexado por id.
type HypothesisBook struct {
	Items map[string]Hypothesis `json:"items"`
}

// NewHypothesisBook devuelve un documento vacío.
func NewHypothesisBook() HypothesisBook {
	return HypothesisBook{Items: make(map[string]Hypothesis)}
}

// Sorted devuelve las hipótesis ordenadas por creación (y luego id).
func (b HypothesisBook) Sorted() []Hypothesis {
	out := make([]Hypothesis, 0, len(b.Items))
	for _, h := range b.Items {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
