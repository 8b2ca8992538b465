package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/engine"
	"spot-exchange/internal/models"
)

// handleBalance implements GET /balance.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	balances, err := s.eng.Balances(r.Context(), principal.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

type placeOrderRequest struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price"`
}

type placeOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
}

// handlePlaceOrder implements POST /order.
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())

	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}

	orderType := models.OrderTypeLimit
	if req.Price == nil {
		orderType = models.OrderTypeMarket
	}

	order, _, err := s.eng.PlaceOrder(r.Context(), engine.PlaceOrderRequest{
		UserID:    principal.ID,
		Ticker:    req.Ticker,
		Direction: models.Direction(req.Direction),
		Type:      orderType,
		Qty:       req.Qty,
		Price:     req.Price,
	})
	if err != nil {
		// A NO_LIQUIDITY market-order failure still persists the order as
		// CANCELLED (spec §4.4.3 scenario 4); the HTTP response is still
		// the error, matching §7: "admission failure leaves no state",
		// finalisation failure is a distinct, expected outcome.
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, placeOrderResponse{Success: true, OrderID: order.ID.String()})
}

type orderResponse struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	UserID    string        `json:"user_id"`
	Timestamp string        `json:"timestamp"`
	Body      orderBodyJSON `json:"body"`
	Filled    int64         `json:"filled"`
}

type orderBodyJSON struct {
	Direction string `json:"direction"`
	Ticker    string `json:"ticker"`
	Type      string `json:"type"`
	Qty       int64  `json:"qty"`
	Price     *int64 `json:"price,omitempty"`
}

func toOrderResponse(o *models.Order) orderResponse {
	return orderResponse{
		ID:     o.ID.String(),
		Status: string(o.Status),
		UserID: o.UserID.String(),
		// grounded on original_source/src/api/order.py, which nests the
		// order fields under a `body` key rather than flattening them.
		Timestamp: o.CreatedAt.Format(timeFormat),
		Body: orderBodyJSON{
			Direction: string(o.Direction),
			Ticker:    o.Ticker,
			Type:      string(o.Type),
			Qty:       o.Qty,
			Price:     o.Price,
		},
		Filled: o.Filled,
	}
}

// handleListOrders implements GET /order.
func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	orders, err := s.eng.ListOrders(r.Context(), principal.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = toOrderResponse(o)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetOrder implements GET /order/{id}.
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed order id"))
		return
	}

	order, err := s.eng.GetOrder(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if order.UserID != principal.ID {
		writeErr(w, apperr.New(apperr.KindForbidden, "order belongs to another user"))
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// handleCancelOrder implements DELETE /order/{id}.
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	principal := principalFromContext(r.Context())
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed order id"))
		return
	}

	if _, err := s.eng.CancelOrder(r.Context(), principal.ID, id); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
