// Package orderbook derives L2 snapshots from a slice of resting
// orders. Unlike the teacher's internal/engine/orderbook.go — a
// process-lifetime map[string]*PriceLevel guarded by a mutex — this is
// a pure, stateless aggregation: the spec requires that no in-memory
// cache survive across transactions, so the book is recomputed from a
// fresh query every call rather than maintained incrementally.
package orderbook

import "spot-exchange/internal/models"

// Level is one aggregated price point: the total remaining quantity
// resting at that price.
type Level struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// Levels aggregates orders (already ordered best-price-first by the
// store query) into at most `limit` price levels, summing qty-filled
// per price. Orders must already share a single side/ticker, and
// carries through the store's ordering rather than re-sorting, since
// the store's ORDER BY is already the correct best-first order for
// whichever side was requested.
func Levels(orders []*models.Order, limit int) []Level {
	levels := make([]Level, 0, limit)
	seen := make(map[int64]int) // price -> index into levels

	for _, o := range orders {
		if o.Price == nil {
			continue // MARKET orders are never resting; defensive only
		}
		remaining := o.Remaining()
		if remaining <= 0 {
			continue
		}

		if idx, ok := seen[*o.Price]; ok {
			levels[idx].Qty += remaining
			continue
		}
		if len(levels) >= limit {
			continue
		}
		seen[*o.Price] = len(levels)
		levels = append(levels, Level{Price: *o.Price, Qty: remaining})
	}
	return levels
}
