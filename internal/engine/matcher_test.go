package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"spot-exchange/internal/models"
)

func limitOrder(direction models.Direction, qty, price int64, created time.Time) *models.Order {
	p := price
	return &models.Order{
		ID:        uuid.New(),
		Ticker:    "XYZ",
		Direction: direction,
		Type:      models.OrderTypeLimit,
		Qty:       qty,
		Price:     &p,
		Status:    models.OrderStatusNew,
		CreatedAt: created,
	}
}

func marketOrder(direction models.Direction, qty int64) *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		Ticker:    "XYZ",
		Direction: direction,
		Type:      models.OrderTypeMarket,
		Qty:       qty,
		Status:    models.OrderStatusNew,
		CreatedAt: time.Now(),
	}
}

// TestMatcher_FullCross verifies a 1:1 limit/limit match produces one
// trade at the resting order's price and fills both orders.
func TestMatcher_FullCross(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{limitOrder(models.DirectionSell, 5, 100, time.Now().Add(-time.Minute))}
	incoming := limitOrder(models.DirectionBuy, 5, 100, time.Now())

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(result.Trades))
	}
	trade := result.Trades[0]
	if trade.Price != 100 || trade.Qty != 5 {
		t.Errorf("expected trade (price=100, qty=5), got (price=%d, qty=%d)", trade.Price, trade.Qty)
	}
	if incoming.Remaining() != 0 {
		t.Errorf("expected incoming fully filled, remaining=%d", incoming.Remaining())
	}
	if resting[0].Status != models.OrderStatusExecuted {
		t.Errorf("expected resting order EXECUTED, got %s", resting[0].Status)
	}
}

// TestMatcher_PriceImprovement verifies the resting order's price sets
// the trade price even when the taker would accept a worse price.
func TestMatcher_PriceImprovement(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{limitOrder(models.DirectionSell, 1, 90, time.Now().Add(-time.Minute))}
	incoming := limitOrder(models.DirectionBuy, 1, 100, time.Now())

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 1 || result.Trades[0].Price != 90 {
		t.Fatalf("expected one trade at price 90, got %+v", result.Trades)
	}
}

// TestMatcher_PartialFill verifies a smaller incoming order partially
// fills a larger resting order, leaving it PARTIALLY_EXECUTED.
func TestMatcher_PartialFill(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{limitOrder(models.DirectionSell, 10, 50, time.Now().Add(-time.Minute))}
	incoming := limitOrder(models.DirectionBuy, 4, 50, time.Now())

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 1 || result.Trades[0].Qty != 4 {
		t.Fatalf("expected one trade of qty 4, got %+v", result.Trades)
	}
	if resting[0].Filled != 4 || resting[0].Status != models.OrderStatusPartiallyExecuted {
		t.Errorf("expected resting order filled=4 PARTIALLY_EXECUTED, got filled=%d status=%s",
			resting[0].Filled, resting[0].Status)
	}
	if incoming.Remaining() != 0 {
		t.Errorf("expected incoming fully filled, remaining=%d", incoming.Remaining())
	}
}

// TestMatcher_PriceViolationStopsWalk verifies the walk stops as soon
// as a resting price would violate the taker's limit, even if a later
// (price-time-priority-ordered) candidate in the slice would not.
func TestMatcher_PriceViolationStopsWalk(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{
		limitOrder(models.DirectionSell, 5, 120, time.Now().Add(-time.Minute)),
		limitOrder(models.DirectionSell, 5, 90, time.Now()),
	}
	incoming := limitOrder(models.DirectionBuy, 5, 100, time.Now())

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 0 {
		t.Fatalf("expected no trades, best ask 120 violates limit 100, got %+v", result.Trades)
	}
}

// TestMatcher_FIFOTieBreak verifies two resting orders at the same
// price fill in arrival order.
func TestMatcher_FIFOTieBreak(t *testing.T) {
	matcher := NewMatcher()
	first := limitOrder(models.DirectionSell, 3, 100, time.Now().Add(-time.Minute))
	second := limitOrder(models.DirectionSell, 3, 100, time.Now())
	resting := []*models.Order{first, second} // store orders by created_at ASC

	incoming := limitOrder(models.DirectionBuy, 3, 100, time.Now())
	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 1 || result.Resting[0].ID != first.ID {
		t.Fatalf("expected the earlier resting order to fill first")
	}
	if first.Remaining() != 0 || second.Remaining() != 3 {
		t.Errorf("expected first order exhausted and second untouched, got first.remaining=%d second.remaining=%d",
			first.Remaining(), second.Remaining())
	}
}

// TestMatcher_MarketWalksMultipleLevels verifies a MARKET taker ignores
// price and sweeps through as many levels as it needs.
func TestMatcher_MarketWalksMultipleLevels(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{
		limitOrder(models.DirectionSell, 2, 10, time.Now().Add(-2*time.Minute)),
		limitOrder(models.DirectionSell, 3, 15, time.Now().Add(-time.Minute)),
	}
	incoming := marketOrder(models.DirectionBuy, 5)

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 2 {
		t.Fatalf("expected 2 trades across both levels, got %d", len(result.Trades))
	}
	if incoming.Remaining() != 0 {
		t.Errorf("expected market order fully filled, remaining=%d", incoming.Remaining())
	}
}

// TestMatcher_MarketInsufficientLiquidity verifies a MARKET taker that
// exhausts the book leaves a nonzero remainder for the caller to
// detect and cancel (§4.4.3 scenario 4).
func TestMatcher_MarketInsufficientLiquidity(t *testing.T) {
	matcher := NewMatcher()
	resting := []*models.Order{limitOrder(models.DirectionSell, 2, 10, time.Now())}
	incoming := marketOrder(models.DirectionBuy, 5)

	result := matcher.Match(incoming, resting, nil)

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade against the only resting order, got %d", len(result.Trades))
	}
	if incoming.Remaining() != 3 {
		t.Errorf("expected remainder 3 after exhausting liquidity, got %d", incoming.Remaining())
	}
}

// TestMatcher_SkipsCandidateFailingAnomalyCheck verifies a candidate
// that fails the reservation-anomaly check is skipped, not treated as a
// walk stopper: the taker still fills against the next price-compatible
// candidate instead of the whole order aborting.
func TestMatcher_SkipsCandidateFailingAnomalyCheck(t *testing.T) {
	matcher := NewMatcher()
	bad := limitOrder(models.DirectionSell, 5, 100, time.Now().Add(-2*time.Minute))
	good := limitOrder(models.DirectionSell, 5, 100, time.Now().Add(-time.Minute))
	resting := []*models.Order{bad, good}
	incoming := limitOrder(models.DirectionBuy, 5, 100, time.Now())

	sufficient := func(candidate *models.Order, tradeQty int64) bool {
		return candidate.ID != bad.ID
	}
	result := matcher.Match(incoming, resting, sufficient)

	if len(result.Trades) != 1 {
		t.Fatalf("expected 1 trade against the solvent candidate, got %d", len(result.Trades))
	}
	if len(result.Resting) != 1 || result.Resting[0].ID != good.ID {
		t.Fatalf("expected the good candidate to be the one touched, got %+v", result.Resting)
	}
	if bad.Filled != 0 {
		t.Errorf("expected the flagged candidate to remain untouched, filled=%d", bad.Filled)
	}
	if incoming.Remaining() != 0 {
		t.Errorf("expected incoming fully filled against the solvent candidate, remaining=%d", incoming.Remaining())
	}
}
