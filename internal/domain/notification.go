package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertLevel indica la severidad de una alerta para el gateway de notificaciones.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "info"
	AlertWarning AlertLevel = "warning"
)

// Alert es un mensaje legible para el humano en el loop.
type Alert struct {
	Level   AlertLevel
	Title   string
	Message string
	At      time.Time
}

// ApprovalRequest describe un trade diferido hasta que un humano lo apruebe.
type ApprovalRequest struct {
	Market       string
	Direction    Direction
	Amount       decimal.Decimal
	Price        decimal.Decimal
	HypothesisID string
	Rationale    string
	RequestedAt  time.Time
}
