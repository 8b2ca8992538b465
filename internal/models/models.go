// Package models holds the domain entities of the exchange: principals,
// instruments, balances, orders and trades.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the principal's authorization level.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Direction is the side of an order.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// OrderType distinguishes limit orders (resting, priced) from market
// orders (immediate, unpriced).
type OrderType string

const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// OrderStatus is the order's place in its lifecycle. NEW and
// PARTIALLY_EXECUTED are resting states for LIMIT orders; EXECUTED and
// CANCELLED are terminal for every order.
type OrderStatus string

const (
	OrderStatusNew               OrderStatus = "NEW"
	OrderStatusPartiallyExecuted OrderStatus = "PARTIALLY_EXECUTED"
	OrderStatusExecuted          OrderStatus = "EXECUTED"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
)

// Principal is a registered user or admin.
type Principal struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	APIKey    uuid.UUID
	CreatedAt time.Time
}

// Instrument is a tradable ticker. RUB is the quote asset and may never
// be deleted.
type Instrument struct {
	Ticker string
	Name   string
}

const QuoteTicker = "RUB"

// Balance is a (user, ticker) ledger row. Available = Total - Reserved.
type Balance struct {
	UserID   uuid.UUID
	Ticker   string
	Total    int64
	Reserved int64
}

// Available returns the unreserved quantity.
func (b Balance) Available() int64 {
	return b.Total - b.Reserved
}

// Order is a limit or market order, resting or historical.
type Order struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Ticker    string
	Direction Direction
	Type      OrderType
	Qty       int64
	Price     *int64 // nil for MARKET
	Filled    int64
	Status    OrderStatus
	CreatedAt time.Time
}

// Remaining is the unfilled quantity.
func (o *Order) Remaining() int64 {
	return o.Qty - o.Filled
}

// IsResting reports whether the order can sit on the book: LIMIT type,
// not terminal. MARKET orders are never resting.
func (o *Order) IsResting() bool {
	return o.Type == OrderTypeLimit &&
		(o.Status == OrderStatusNew || o.Status == OrderStatusPartiallyExecuted)
}

// Trade is an append-only execution record.
type Trade struct {
	ID         uuid.UUID
	Ticker     string
	Price      int64
	Qty        int64
	ExecutedAt time.Time
}
