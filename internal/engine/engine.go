package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/ledger"
	"spot-exchange/internal/models"
	"spot-exchange/internal/orderbook"
	"spot-exchange/internal/store"
)

// Engine orchestrates admission, matching, settlement and cancellation
// (spec §4.4-4.5) in terms of the ledger and store packages. Unlike the
// teacher's Engine, it holds no in-memory order book and no per-symbol
// mutex: all concurrency control is row locks taken inside one
// transaction per call, per §5.
type Engine struct {
	db     *sql.DB
	ledger *ledger.Ledger
	orders *store.OrderStore
	trades *store.TradeStore
	match  *Matcher
	log    zerolog.Logger
}

// New constructs an Engine.
func New(db *sql.DB, log zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		ledger: ledger.New(),
		orders: store.NewOrderStore(),
		trades: store.NewTradeStore(),
		match:  NewMatcher(),
		log:    log,
	}
}

// PlaceOrderRequest is the validated intent to place an order, built by
// internal/api from the HTTP request body.
type PlaceOrderRequest struct {
	UserID    uuid.UUID
	Ticker    string
	Direction models.Direction
	Type      models.OrderType
	Qty       int64
	Price     *int64 // nil for MARKET, required for LIMIT
}

// Validate checks the request shape (spec §3's Order invariants),
// independent of any DB state.
func (r *PlaceOrderRequest) Validate() error {
	if r.Ticker == "" {
		return apperr.New(apperr.KindValidation, "ticker is required")
	}
	if r.Ticker == models.QuoteTicker {
		return apperr.New(apperr.KindValidation, "cannot trade the quote asset against itself")
	}
	if r.Direction != models.DirectionBuy && r.Direction != models.DirectionSell {
		return apperr.New(apperr.KindValidation, "direction must be BUY or SELL")
	}
	if r.Type != models.OrderTypeLimit && r.Type != models.OrderTypeMarket {
		return apperr.New(apperr.KindValidation, "type must be LIMIT or MARKET")
	}
	if r.Qty < 1 {
		return apperr.New(apperr.KindValidation, "qty must be >= 1")
	}
	if r.Type == models.OrderTypeLimit {
		if r.Price == nil || *r.Price <= 0 {
			return apperr.New(apperr.KindValidation, "price is required and must be positive for LIMIT orders")
		}
	} else if r.Price != nil {
		return apperr.New(apperr.KindValidation, "price must be absent for MARKET orders")
	}
	return nil
}

// PlaceOrder implements admission (§4.4.1), the matching walk (§4.4.2)
// and finalisation (§4.4.3) in one transaction.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, []*models.Trade, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := e.ensureInstrument(ctx, tx, req.Ticker); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	asset, reserveAmount, takerUnitPrice, err := e.admissionReservation(ctx, tx, req)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}
	if err := e.ledger.Reserve(ctx, tx, req.UserID, asset, reserveAmount); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	incoming := &models.Order{
		UserID:    req.UserID,
		Ticker:    req.Ticker,
		Direction: req.Direction,
		Type:      req.Type,
		Qty:       req.Qty,
		Price:     req.Price,
		Filled:    0,
		Status:    models.OrderStatusNew,
		CreatedAt: time.Now(),
	}
	if err := e.orders.Create(ctx, tx, incoming); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	resting, err := e.orders.ListOppositeResting(ctx, tx, req.Ticker, req.Direction)
	if err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	result := e.match.Match(incoming, resting, e.sufficientReservation(ctx, tx))

	if incoming.Type == models.OrderTypeMarket && incoming.Filled != incoming.Qty {
		// NO_LIQUIDITY: discard every matched effect (no trades, no
		// counterparty mutation persisted), release the full admission
		// reservation, and persist the order itself as CANCELLED.
		e.log.Info().Str("ticker", req.Ticker).Msg("market order could not be fully filled, cancelling")
		if err := e.ledger.Reserve(ctx, tx, req.UserID, asset, -reserveAmount); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		incoming.Filled = 0
		incoming.Status = models.OrderStatusCancelled
		if err := e.orders.UpdateFill(ctx, tx, incoming); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, fmt.Errorf("commit transaction: %w", err)
		}
		return incoming, nil, apperr.New(apperr.KindNoLiquidity, "insufficient liquidity to fill market order")
	}

	for i, trade := range result.Trades {
		trade.Ticker = req.Ticker
		if err := e.trades.Insert(ctx, tx, trade); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		candidate := result.Resting[i]
		if err := e.settleTrade(ctx, tx, req.Ticker, trade, incoming, candidate, takerUnitPrice); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
		if err := e.orders.UpdateFill(ctx, tx, candidate); err != nil {
			tx.Rollback()
			return nil, nil, err
		}
	}

	switch {
	case incoming.Filled == incoming.Qty:
		incoming.Status = models.OrderStatusExecuted
	case incoming.Filled > 0:
		incoming.Status = models.OrderStatusPartiallyExecuted
	default:
		incoming.Status = models.OrderStatusNew
	}
	if err := e.orders.UpdateFill(ctx, tx, incoming); err != nil {
		tx.Rollback()
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", err)
	}

	tradesOut := make([]*models.Trade, len(result.Trades))
	copy(tradesOut, result.Trades)
	return incoming, tradesOut, nil
}

// admissionReservation computes the asset and amount to reserve per
// §4.4.1, plus the per-unit rate used to release that reservation as
// the order fills (its own limit price for LIMIT BUY, the worst
// resting ask for MARKET BUY; unused — ticker reservation is always
// 1:1 — for SELL of either type).
func (e *Engine) admissionReservation(ctx context.Context, tx *sql.Tx, req PlaceOrderRequest) (asset string, amount int64, unitPrice int64, err error) {
	switch {
	case req.Direction == models.DirectionBuy && req.Type == models.OrderTypeLimit:
		return models.QuoteTicker, req.Qty * (*req.Price), *req.Price, nil

	case req.Direction == models.DirectionSell:
		return req.Ticker, req.Qty, 1, nil

	default: // BUY MARKET
		worst, ok, werr := e.orders.WorstRestingPrice(ctx, tx, req.Ticker, models.DirectionSell)
		if werr != nil {
			return "", 0, 0, werr
		}
		if !ok {
			return "", 0, 0, apperr.New(apperr.KindNoLiquidity, "no resting asks for %s", req.Ticker)
		}
		return models.QuoteTicker, req.Qty * worst, worst, nil
	}
}

// sufficientReservation returns the matcher's anomaly-defense callback
// (§4.4.2 step 4): it checks that candidate's owner still has enough
// reserved balance of the asset they are supplying to cover tradeQty.
// A lookup failure is treated as insufficient so the walk skips the
// candidate rather than trading against an unverifiable reservation.
func (e *Engine) sufficientReservation(ctx context.Context, tx *sql.Tx) func(candidate *models.Order, tradeQty int64) bool {
	return func(candidate *models.Order, tradeQty int64) bool {
		asset := candidate.Ticker
		need := tradeQty
		if candidate.Direction == models.DirectionBuy {
			asset = models.QuoteTicker
			need = tradeQty * (*candidate.Price)
		}
		reserved, err := e.ledger.Reserved(ctx, tx, candidate.UserID, asset)
		if err != nil {
			e.log.Error().Err(err).Str("order_id", candidate.ID.String()).Msg("failed to verify counterparty reservation, skipping candidate")
			return false
		}
		return reserved >= need
	}
}

// settleTrade moves the four balance rows and releases the matched
// reservation legs for one trade (§4.4.2 step 5).
func (e *Engine) settleTrade(ctx context.Context, tx *sql.Tx, ticker string, trade *models.Trade, taker, maker *models.Order, takerUnitPrice int64) error {
	var buyer, seller *models.Order
	if taker.Direction == models.DirectionBuy {
		buyer, seller = taker, maker
	} else {
		buyer, seller = maker, taker
	}

	cash := trade.Price * trade.Qty
	changes := []ledger.Change{
		{UserID: buyer.UserID, Ticker: models.QuoteTicker, Delta: -cash},
		{UserID: buyer.UserID, Ticker: ticker, Delta: trade.Qty},
		{UserID: seller.UserID, Ticker: models.QuoteTicker, Delta: cash},
		{UserID: seller.UserID, Ticker: ticker, Delta: -trade.Qty},
	}
	if err := e.ledger.Settle(ctx, tx, changes); err != nil {
		return err
	}

	buyerRate := trade.Price
	if buyer.ID == taker.ID {
		buyerRate = takerUnitPrice
	}
	if err := e.ledger.Reserve(ctx, tx, buyer.UserID, models.QuoteTicker, -(buyerRate * trade.Qty)); err != nil {
		return err
	}
	if err := e.ledger.Reserve(ctx, tx, seller.UserID, ticker, -trade.Qty); err != nil {
		return err
	}
	return nil
}

// CancelOrder implements §4.5: terminate a resting order and release
// its residual reservation.
func (e *Engine) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	order, err := e.orders.GetByID(ctx, tx, orderID, true)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if order.UserID != userID {
		tx.Rollback()
		return nil, apperr.New(apperr.KindForbidden, "order belongs to another user")
	}
	if order.Status != models.OrderStatusNew && order.Status != models.OrderStatusPartiallyExecuted {
		tx.Rollback()
		return nil, apperr.New(apperr.KindValidation, "order is not cancellable in status %s", order.Status)
	}

	remainder := order.Remaining()
	if remainder > 0 {
		if order.Direction == models.DirectionBuy {
			if err := e.ledger.Reserve(ctx, tx, userID, models.QuoteTicker, -(remainder * (*order.Price))); err != nil {
				tx.Rollback()
				return nil, err
			}
		} else {
			if err := e.ledger.Reserve(ctx, tx, userID, order.Ticker, -remainder); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	order.Status = models.OrderStatusCancelled
	if err := e.orders.Cancel(ctx, tx, orderID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

func (e *Engine) ensureInstrument(ctx context.Context, tx *sql.Tx, ticker string) error {
	var exists int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM instruments WHERE ticker = ?`, ticker).Scan(&exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return apperr.New(apperr.KindNotFound, "instrument %s not found", ticker)
		}
		return fmt.Errorf("check instrument: %w", err)
	}
	return nil
}

// GetOrder fetches a single order, unlocked (read path).
func (e *Engine) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read transaction: %w", err)
	}
	defer tx.Rollback()
	return e.orders.GetByID(ctx, tx, id, false)
}

// ListOrders returns every order owned by userID.
func (e *Engine) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return e.orders.ListByUser(ctx, e.db, userID)
}

// OrderBook returns aggregated bid/ask levels for a ticker (§4.3).
func (e *Engine) OrderBook(ctx context.Context, ticker string, limit int) (bids, asks []orderbook.Level, err error) {
	bidOrders, err := e.orders.ListSameSideResting(ctx, e.db, ticker, models.DirectionBuy)
	if err != nil {
		return nil, nil, err
	}
	askOrders, err := e.orders.ListSameSideResting(ctx, e.db, ticker, models.DirectionSell)
	if err != nil {
		return nil, nil, err
	}
	return orderbook.Levels(bidOrders, limit), orderbook.Levels(askOrders, limit), nil
}

// Trades returns the most recent trades for a ticker.
func (e *Engine) Trades(ctx context.Context, ticker string, limit int) ([]*models.Trade, error) {
	return e.trades.ListByTicker(ctx, e.db, ticker, limit)
}

// Deposit credits a user's balance (admin operation, §6).
func (e *Engine) Deposit(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := e.ledger.Deposit(ctx, tx, userID, ticker, amount); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Withdraw debits a user's balance (admin operation, §6).
func (e *Engine) Withdraw(ctx context.Context, userID uuid.UUID, ticker string, amount int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := e.ledger.Withdraw(ctx, tx, userID, ticker, amount); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Balances returns the total quantity (available + reserved) held per
// ticker for a user.
func (e *Engine) Balances(ctx context.Context, userID uuid.UUID) (map[string]int64, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT ticker, total FROM balances WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var ticker string
		var total int64
		if err := rows.Scan(&ticker, &total); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		out[ticker] = total
	}
	return out, rows.Err()
}
