package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"spot-exchange/internal/apperr"
)

type registerRequest struct {
	Name string `json:"name"`
}

type registerResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	APIKey string `json:"api_key"`
}

// handleRegister implements POST /public/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	if len(req.Name) < 3 {
		writeErr(w, apperr.New(apperr.KindValidation, "name must be at least 3 characters"))
		return
	}

	p, err := s.principals.Register(r.Context(), s.db, req.Name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		ID:     p.ID.String(),
		Name:   p.Name,
		Role:   string(p.Role),
		APIKey: p.APIKey.String(),
	})
}

type instrumentResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// handleListInstruments implements GET /public/instrument.
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	list, err := s.instruments.List(r.Context(), s.db)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]instrumentResponse, 0, len(list))
	for _, i := range list {
		out = append(out, instrumentResponse{Name: i.Name, Ticker: i.Ticker})
	}
	writeJSON(w, http.StatusOK, out)
}

type orderBookResponse struct {
	BidLevels []levelResponse `json:"bid_levels"`
	AskLevels []levelResponse `json:"ask_levels"`
}

type levelResponse struct {
	Price int64 `json:"price"`
	Qty   int64 `json:"qty"`
}

// handleOrderBook implements GET /public/orderbook/{ticker}?limit=10.
func (s *Server) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit, err := parseLimit(r, 10, 1, 25)
	if err != nil {
		writeErr(w, err)
		return
	}

	if err := s.requireInstrument(r, ticker); err != nil {
		writeErr(w, err)
		return
	}

	bids, asks, err := s.eng.OrderBook(r.Context(), ticker, limit)
	if err != nil {
		writeErr(w, err)
		return
	}

	resp := orderBookResponse{
		BidLevels: make([]levelResponse, len(bids)),
		AskLevels: make([]levelResponse, len(asks)),
	}
	for i, l := range bids {
		resp.BidLevels[i] = levelResponse{Price: l.Price, Qty: l.Qty}
	}
	for i, l := range asks {
		resp.AskLevels[i] = levelResponse{Price: l.Price, Qty: l.Qty}
	}
	writeJSON(w, http.StatusOK, resp)
}

type transactionResponse struct {
	Ticker    string `json:"ticker"`
	Amount    int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp string `json:"timestamp"`
}

// handleTransactions implements GET /public/transactions/{ticker}?limit=10.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	limit, err := parseLimit(r, 10, 1, 100)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.requireInstrument(r, ticker); err != nil {
		writeErr(w, err)
		return
	}

	trades, err := s.eng.Trades(r.Context(), ticker, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]transactionResponse, len(trades))
	for i, t := range trades {
		out[i] = transactionResponse{
			Ticker:    t.Ticker,
			Amount:    t.Qty,
			Price:     t.Price,
			Timestamp: t.ExecutedAt.Format(timeFormat),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

const timeFormat = "2006-01-02T15:04:05.000000Z"

func parseLimit(r *http.Request, def, min, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, apperr.New(apperr.KindValidation, "limit must be between %d and %d", min, max)
	}
	return n, nil
}

func (s *Server) requireInstrument(r *http.Request, ticker string) error {
	list, err := s.instruments.List(r.Context(), s.db)
	if err != nil {
		return err
	}
	for _, i := range list {
		if i.Ticker == ticker {
			return nil
		}
	}
	return apperr.New(apperr.KindNotFound, "instrument %q not found", ticker)
}
