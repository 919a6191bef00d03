package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/polydesk/internal/domain"
	"github.com/alejandrodnm/polydesk/internal/ports"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

var _ ports.MarketProvider = (*Client)(nil)

// FetchMarkets obtiene de Gamma la fecha de cierre y el precio YES de los
// condition_ids dados, en lotes de 20. Un lote fallido se salta; solo se
// devuelve error si fallan todos.
func (c *Client) FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]domain.Market, error) {
	result := make(map[string]domain.Market, len(conditionIDs))
	ids := dedupe(conditionIDs)
	if len(ids) == 0 {
		return result, nil
	}

	var lastErr error
	failed, batches := 0, 0
	for i := 0; i < len(ids); i += gammaConditionMax {
		end := i + gammaConditionMax
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]
		batches++

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			failed++
			lastErr = err
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = mapGammaMarket(gm)
		}
	}

	if failed == batches {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", lastErr)
	}
	slog.Debug("gamma fetch complete", "requested", len(ids), "found", len(result))
	return result, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
