package polymarket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// mapGammaMarket convierte un gammaMarket DTO a domain.Market.
func mapGammaMarket(gm gammaMarket) domain.Market {
	m := domain.Market{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		Active:      gm.Active,
		Closed:      gm.Closed,
		YesPrice:    yesPrice(gm),
	}

	// endDate trae hora; endDateIso a veces solo la fecha
	for _, raw := range []string{gm.EndDate, gm.EndDateISO} {
		if t, ok := parseDate(raw); ok {
			m.EndDate = t
			break
		}
	}
	return m
}

// parseDate prueba los formatos que usa Polymarket.
func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// yesPrice busca el outcome "Yes" en outcomePrices. Si no está, cae a
// lastTradePrice; si tampoco, devuelve cero (precio desconocido).
func yesPrice(gm gammaMarket) decimal.Decimal {
	var outcomes, prices []string
	if json.Unmarshal([]byte(gm.Outcomes), &outcomes) == nil &&
		json.Unmarshal([]byte(gm.OutcomePrices), &prices) == nil &&
		len(outcomes) == len(prices) {
		for i, o := range outcomes {
			if !strings.EqualFold(o, "yes") {
				continue
			}
			if p, err := decimal.NewFromString(prices[i]); err == nil {
				return p
			}
		}
	}
	if gm.LastTradePrice != "" {
		if p, err := decimal.NewFromString(gm.LastTradePrice.String()); err == nil {
			return p
		}
	}
	return decimal.Zero
}
