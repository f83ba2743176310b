// Package rpc exposes a read-only HTTP surface over BRM and ExchangeBlocker
// state — reservations, positions, portfolio value, and per-exchange block
// status — for operator tooling and dashboards. The reservation/blocker core
// itself defines no wire protocol; this is one layer built on top of it,
// reusing internal/api's router shape (mux subrouter, CORS, Response
// envelope).
package rpc

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewRouter builds the read-only control surface backed by handler.
func NewRouter(handler *Handler) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/rpc/v1").Subrouter()
	api.HandleFunc("/reservations", handler.GetReservations).Methods("GET")
	api.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/portfolio", handler.GetPortfolioValueUSD).Methods("GET")
	api.HandleFunc("/exchanges/{exchange}/blocked", handler.GetBlockedState).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}
