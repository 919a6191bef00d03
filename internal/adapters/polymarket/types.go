package polymarket

import "encoding/json"

// DTOs raw de la API Gamma. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number.
// Outcomes y OutcomePrices son arrays JSON serializados dentro de un string:
// "[\"Yes\", \"No\"]" y "[\"0.62\", \"0.38\"]".
type gammaMarket struct {
	ConditionID    string      `json:"conditionId"`
	Question       string      `json:"question"`
	Slug           string      `json:"slug"`
	EndDateISO     string      `json:"endDateIso"`
	EndDate        string      `json:"endDate"`
	Outcomes       string      `json:"outcomes"`
	OutcomePrices  string      `json:"outcomePrices"`
	LastTradePrice json.Number `json:"lastTradePrice"`
	Active         bool        `json:"active"`
	Closed         bool        `json:"closed"`
}
