// Package engine implements the matching engine of spec §4.4 and the
// cancellation path of §4.5.
package engine

import (
	"time"

	"spot-exchange/internal/models"
)

// MatchResult is the outcome of walking an incoming order against a
// slice of resting orders.
type MatchResult struct {
	Trades  []*models.Trade
	Resting []*models.Order // resting orders touched by the walk, to persist
}

// Matcher implements price-time priority matching. It is a pure
// function over its arguments — no I/O, no shared state — so it can be
// unit tested without a database, the same way the teacher's
// Matcher.Match was testable against an in-memory OrderBook.
type Matcher struct{}

// NewMatcher returns a Matcher. It holds no state.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match walks `resting` (already fetched in price-time priority for the
// opposite side, per store.ListOppositeResting) against `incoming`,
// mutating incoming.Filled in place and returning the trades produced
// plus the resting orders that were touched. It does not decide
// incoming's final status — that is Engine.PlaceOrder's job (§4.4.3),
// since market-vs-limit finalisation needs context (admission
// reservation refunds) the matcher doesn't have.
//
// sufficient, if non-nil, is consulted before settling each candidate:
// it reports whether the candidate's owner still has enough reserved
// balance to supply tradeQty of their side (a defense against ledger
// anomalies, not the ordinary path — admission already reserved this).
// A candidate that fails the check is skipped, not treated as a walk
// stopper: later, price-compatible candidates still get a chance. A nil
// sufficient treats every candidate as solvent, for callers (unit tests)
// that construct resting orders without a backing ledger.
func (m *Matcher) Match(incoming *models.Order, resting []*models.Order, sufficient func(candidate *models.Order, tradeQty int64) bool) *MatchResult {
	result := &MatchResult{}
	now := time.Now()

	for _, candidate := range resting {
		if incoming.Remaining() <= 0 {
			break
		}
		available := candidate.Remaining()
		if available <= 0 {
			continue
		}
		if !m.canMatch(incoming, candidate) {
			break // price violated: rest of the walk is worse, stop
		}

		tradeQty := incoming.Remaining()
		if available < tradeQty {
			tradeQty = available
		}
		if sufficient != nil && !sufficient(candidate, tradeQty) {
			continue // ledger anomaly on the counterparty: skip, keep walking
		}
		tradePrice := *candidate.Price // resting side sets the price

		trade := &models.Trade{
			Ticker:     incoming.Ticker,
			Price:      tradePrice,
			Qty:        tradeQty,
			ExecutedAt: now,
		}
		result.Trades = append(result.Trades, trade)

		incoming.Filled += tradeQty
		candidate.Filled += tradeQty
		if candidate.Remaining() <= 0 {
			candidate.Status = models.OrderStatusExecuted
		} else {
			candidate.Status = models.OrderStatusPartiallyExecuted
		}
		result.Resting = append(result.Resting, candidate)
	}

	return result
}

// canMatch reports whether incoming can trade against candidate.
// MARKET takers match any resting price; LIMIT takers require
// candidate's price not to violate their own limit.
func (m *Matcher) canMatch(incoming, candidate *models.Order) bool {
	if incoming.Type == models.OrderTypeMarket {
		return true
	}
	if incoming.Price == nil || candidate.Price == nil {
		return false
	}
	if incoming.Direction == models.DirectionBuy {
		return *candidate.Price <= *incoming.Price
	}
	return *candidate.Price >= *incoming.Price
}
