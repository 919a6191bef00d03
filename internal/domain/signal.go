package domain

// SignalClass agrupa las señales para desempatar: risk > time > blocked.
type SignalClass int

const (
	SignalRisk SignalClass = iota
	SignalTime
	SignalBlocked
)

// String devuelve el nombre de la clase.
func (c SignalClass) String() string {
	switch c {
	case SignalRisk:
		return "portfolio_risk"
	case SignalTime:
		return "time_sensitive"
	case SignalBlocked:
		return "blocked_hypothesis"
	}
	return "unknown"
}

// Acciones que el scheduler puede despachar.
const (
	ActionReviewPosition        = "review-position"
	ActionStopLossWarning       = "stop-loss-warning"
	ActionClosingMarketDecision = "closing-market-decision"
	ActionUnstickHypothesis     = "unstick-hypothesis"
)

// Urgencias fijas por tipo de señal.
const (
	UrgencyStopLossWarning = 95
	UrgencyReviewPosition  = 90
	UrgencyClosingMarket   = 80
	UrgencyUnstick         = 60
)

// Signal es una señal de prioridad calculada. No se persiste.
type Signal struct {
	Type    SignalClass       `json:"-"`
	Kind    string            `json:"type"`
	Urgency int               `json:"urgency"`
	Action  string            `json:"action"`
	Context map[string]string `json:"context"`
}

// Responsabilidades permanentes que el scheduler despacha en round-robin
// cuando ninguna señal supera el umbral.
const (
	ActionReviewPortfolio  = "review-portfolio"
	ActionSelectHypothesis = "select-hypothesis"
	ActionProcessHandoffs  = "process-handoffs"
)
