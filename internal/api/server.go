// Package api implements the HTTP surface of spec §6: public,
// authenticated and admin routes under /api/v1, grounded on the
// teacher's handler-per-resource shape (cmd/server/main.go's
// handleOrders/handleOrderByID/handleTrades/handleOrderBook) and on
// VictorVVedtion-perp-dex/api/handlers/riverpool.go's gorilla/mux
// registration style.
package api

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"spot-exchange/internal/engine"
	"spot-exchange/internal/store"
)

// Server wires the engine and the auxiliary stores (principals,
// instruments) that sit outside the matching engine proper into HTTP
// handlers.
type Server struct {
	db          *sql.DB
	eng         *engine.Engine
	principals  *store.PrincipalStore
	instruments *store.InstrumentStore
	adminAPIKey uuid.UUID
	log         zerolog.Logger
}

// New constructs a Server.
func New(db *sql.DB, eng *engine.Engine, adminAPIKey uuid.UUID, log zerolog.Logger) *Server {
	return &Server{
		db:          db,
		eng:         eng,
		principals:  store.NewPrincipalStore(),
		instruments: store.NewInstrumentStore(),
		adminAPIKey: adminAPIKey,
		log:         log,
	}
}

// Router builds the full route tree. Mirrors the teacher's
// http.NewServeMux wiring in cmd/server/main.go, generalized to
// gorilla/mux for path parameters.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	pub := api.PathPrefix("/public").Subrouter()
	pub.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	pub.HandleFunc("/instrument", s.handleListInstruments).Methods(http.MethodGet)
	pub.HandleFunc("/orderbook/{ticker}", s.handleOrderBook).Methods(http.MethodGet)
	pub.HandleFunc("/transactions/{ticker}", s.handleTransactions).Methods(http.MethodGet)

	auth := api.NewRoute().Subrouter()
	auth.Use(s.authMiddleware)
	auth.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	auth.HandleFunc("/order", s.handlePlaceOrder).Methods(http.MethodPost)
	auth.HandleFunc("/order", s.handleListOrders).Methods(http.MethodGet)
	auth.HandleFunc("/order/{id}", s.handleGetOrder).Methods(http.MethodGet)
	auth.HandleFunc("/order/{id}", s.handleCancelOrder).Methods(http.MethodDelete)

	admin := api.NewRoute().Subrouter()
	admin.Use(s.authMiddleware, s.adminMiddleware)
	admin.HandleFunc("/admin/user/{id}", s.handleDeleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/instrument", s.handleCreateInstrument).Methods(http.MethodPost)
	admin.HandleFunc("/admin/instrument/{ticker}", s.handleDeleteInstrument).Methods(http.MethodDelete)
	admin.HandleFunc("/admin/balance/deposit", s.handleDeposit).Methods(http.MethodPost)
	admin.HandleFunc("/admin/balance/withdraw", s.handleWithdraw).Methods(http.MethodPost)

	return r
}

// handleHealth pings the database, matching the teacher's
// handleHealth liveness check (SUPPLEMENT: original_source/src/router
// /public.py exposes an equivalent ping route).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeError(w, http.StatusInternalServerError, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
