package api

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"spot-exchange/internal/apperr"
	"spot-exchange/internal/models"
)

var tickerPattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

// handleDeleteUser implements DELETE /admin/user/{id}.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed user id"))
		return
	}
	p, err := s.principals.Delete(r.Context(), s.db, id)
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

type createInstrumentRequest struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// handleCreateInstrument implements POST /admin/instrument.
func (s *Server) handleCreateInstrument(w http.ResponseWriter, r *http.Request) {
	var req createInstrumentRequest
	if err := decodeJSON(r, &req); err != nil || req.Name == "" {
		writeErr(w, apperr.New(apperr.KindValidation, "name and ticker are required"))
		return
	}
	if !tickerPattern.MatchString(req.Ticker) {
		writeErr(w, apperr.New(apperr.KindValidation, "ticker must be 2-10 uppercase letters"))
		return
	}
	if err := s.instruments.Create(r.Context(), s.db, req.Ticker, req.Name); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleDeleteInstrument implements DELETE /admin/instrument/{ticker}.
// Deleting the quote asset RUB is always forbidden.
func (s *Server) handleDeleteInstrument(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	if ticker == models.QuoteTicker {
		writeErr(w, apperr.New(apperr.KindForbidden, "the quote asset cannot be deleted"))
		return
	}
	if err := s.instruments.Delete(r.Context(), s.db, ticker); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type balanceAdjustRequest struct {
	UserID string `json:"user_id"`
	Ticker string `json:"ticker"`
	Amount int64  `json:"amount"`
}

func (req balanceAdjustRequest) parse() (uuid.UUID, error) {
	id, err := uuid.Parse(req.UserID)
	if err != nil {
		return uuid.UUID{}, apperr.New(apperr.KindValidation, "malformed user_id")
	}
	if req.Ticker == "" {
		return uuid.UUID{}, apperr.New(apperr.KindValidation, "ticker is required")
	}
	if req.Amount <= 0 {
		return uuid.UUID{}, apperr.New(apperr.KindValidation, "amount must be positive")
	}
	return id, nil
}

// handleDeposit implements POST /admin/balance/deposit.
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req balanceAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	userID, err := req.parse()
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.eng.Deposit(r.Context(), userID, req.Ticker, req.Amount); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleWithdraw implements POST /admin/balance/withdraw.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req balanceAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apperr.New(apperr.KindValidation, "malformed request body"))
		return
	}
	userID, err := req.parse()
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.eng.Withdraw(r.Context(), userID, req.Ticker, req.Amount); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
