package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mmbcore/engine/internal/brm"
	"github.com/mmbcore/engine/internal/decimal"
	"github.com/mmbcore/engine/internal/domain"
	"github.com/mmbcore/engine/internal/exchangeblocker"
	"github.com/mmbcore/engine/internal/priceconv"
)

// Handler serves read-only snapshots of BRM and ExchangeBlocker state.
type Handler struct {
	manager   *brm.Manager
	blocker   *exchangeblocker.ExchangeBlocker
	converter priceconv.PriceConverter
	log       zerolog.Logger
}

func NewHandler(manager *brm.Manager, blocker *exchangeblocker.ExchangeBlocker, converter priceconv.PriceConverter, logger zerolog.Logger) *Handler {
	return &Handler{manager: manager, blocker: blocker, converter: converter, log: logger}
}

// Response mirrors internal/api's envelope shape, reused verbatim.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type reservationView struct {
	Id                  uint64            `json:"id"`
	Exchange            string            `json:"exchange"`
	CurrencyPair        string            `json:"currency_pair"`
	Side                domain.OrderSide  `json:"side"`
	Amount              decimal.Decimal   `json:"amount"`
	UnreservedAmount    decimal.Decimal   `json:"unreserved_amount"`
	NotApprovedAmount   decimal.Decimal   `json:"not_approved_amount"`
	Price               decimal.Decimal   `json:"price"`
	Cost                decimal.Decimal   `json:"cost"`
}

func (h *Handler) GetReservations(w http.ResponseWriter, r *http.Request) {
	state := h.manager.GetState()

	views := make([]reservationView, 0, len(state.Reservations))
	for id, res := range state.Reservations {
		views = append(views, reservationView{
			Id:                uint64(id),
			Exchange:          res.ExchangeAccountId.String(),
			CurrencyPair:      res.CurrencyPairMetadata.CurrencyPair().String(),
			Side:              res.OrderSide,
			Amount:            res.Amount,
			UnreservedAmount:  res.UnreservedAmount,
			NotApprovedAmount: res.NotApprovedAmount,
			Price:             res.Price,
			Cost:              res.Cost,
		})
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: views})
}

type positionView struct {
	Exchange     string          `json:"exchange"`
	CurrencyPair string          `json:"currency_pair"`
	Amount       decimal.Decimal `json:"amount"`
}

func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	state := h.manager.GetState()

	views := make([]positionView, 0, len(state.Positions))
	for key, amount := range state.Positions {
		if amount.IsZero() {
			continue
		}
		views = append(views, positionView{
			Exchange:     key.ExchangeAccountId.String(),
			CurrencyPair: key.CurrencyPair.String(),
			Amount:       amount,
		})
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: views})
}

type portfolioEntry struct {
	Exchange      string          `json:"exchange"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	ValueUSD      decimal.Decimal `json:"value_usd"`
	PriceKnown    bool            `json:"price_known"`
}

func (h *Handler) GetPortfolioValueUSD(w http.ResponseWriter, r *http.Request) {
	state := h.manager.GetState()

	var entries []portfolioEntry
	for exchange, byCurrency := range state.RawBalances {
		for currency, amount := range byCurrency {
			entry := portfolioEntry{Exchange: exchange.String(), Currency: string(currency), Amount: amount}
			if h.converter != nil {
				if usd, ok := h.converter.ConvertToUSD(currency, amount); ok {
					entry.ValueUSD = usd
					entry.PriceKnown = true
				}
			}
			entries = append(entries, entry)
		}
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: entries})
}

type blockedStateView struct {
	Exchange string   `json:"exchange"`
	Blocked  bool     `json:"blocked"`
	Reasons  []string `json:"reasons"`
}

func (h *Handler) GetBlockedState(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["exchange"]

	instanceIndex := uint32(0)
	if raw := r.URL.Query().Get("instance_index"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 32); err == nil {
			instanceIndex = uint32(parsed)
		}
	}

	exchange := domain.NewExchangeAccountId(name, instanceIndex)
	reasons := h.blocker.BlockedReasons(exchange)

	reasonStrings := make([]string, len(reasons))
	for i, reason := range reasons {
		reasonStrings[i] = string(reason)
	}

	respondJSON(w, http.StatusOK, Response{Success: true, Data: blockedStateView{
		Exchange: exchange.String(),
		Blocked:  h.blocker.IsBlocked(exchange),
		Reasons:  reasonStrings,
	}})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, Response{Success: true, Data: map[string]string{"status": "healthy"}})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return
	}
}
