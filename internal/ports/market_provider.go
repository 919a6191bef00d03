package ports

import (
	"context"

	"github.com/alejandrodnm/polydesk/internal/domain"
)

// MarketProvider obtiene metadata de mercados: fecha de cierre y precio YES.
type MarketProvider interface {
	// FetchMarkets devuelve los mercados encontrados indexados por conditionID.
	// Los ids sin datos simplemente no aparecen en el mapa.
	FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]domain.Market, error)
}
