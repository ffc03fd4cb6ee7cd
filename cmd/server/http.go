package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/lookup"
	"token-ledger/internal/observability"
	"token-ledger/internal/storage"
	"token-ledger/internal/stream"
)

// api serves the read-only ledger surface.
type api struct {
	ledger  *ledger.Ledger
	store   storage.LedgerStore
	events  storage.EventStore
	hub     *stream.Hub
	health  func(context.Context) error // nil when there is nothing to check
	log     zerolog.Logger
	started time.Time
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status      string           `json:"status"`
	Uptime      string           `json:"uptime"`
	Token       domain.TokenInfo `json:"token"`
	TokenURI    string           `json:"token_uri"`
	Supply      uint64           `json:"supply"`
	Sequence    uint64           `json:"sequence"`
	Subscribers int              `json:"subscribers"`
}

// BalanceResponse is the JSON response for the /balance endpoint.
type BalanceResponse struct {
	Principal domain.Principal `json:"principal"`
	Balance   uint64           `json:"balance"`
	Sequence  uint64           `json:"sequence"`
}

// SupplyResponse is the JSON response for the /supply endpoint.
type SupplyResponse struct {
	Supply   uint64 `json:"supply"`
	Sequence uint64 `json:"sequence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /status", a.handleStatus)
	mux.HandleFunc("GET /balance/{principal}", a.handleBalance)
	mux.HandleFunc("GET /supply", a.handleSupply)
	mux.Handle("/events", a.hub)

	return mux
}

// handleHealth reports whether the storage backend answers.
func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.log.Warn().Err(err).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleStatus returns token info and ledger scalars.
func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	state, err := a.store.State(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("could not load ledger state")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load ledger state"})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:      "running",
		Uptime:      time.Since(a.started).Truncate(time.Second).String(),
		Token:       a.ledger.Config().Token,
		TokenURI:    state.TokenURI,
		Supply:      state.Supply,
		Sequence:    state.Sequence,
		Subscribers: a.hub.Subscribers(),
	})
}

// handleBalance returns the balance of the principal in the path. With ?at=N
// the balance after the call with sequence N is rebuilt from the event log.
func (a *api) handleBalance(w http.ResponseWriter, r *http.Request) {
	p, err := domain.ParsePrincipal(r.PathValue("principal"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	at, current, ok := a.resolveSequence(w, r)
	if !ok {
		return
	}

	if at == current {
		balance, err := a.ledger.GetBalance(r.Context(), p)
		if err != nil {
			a.log.Error().Err(err).Str("principal", p.String()).Msg("could not load balance")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load balance"})
			return
		}
		writeJSON(w, http.StatusOK, BalanceResponse{Principal: p, Balance: balance, Sequence: current})
		return
	}

	events, err := a.events.GetByPrincipal(r.Context(), p)
	if err != nil {
		a.log.Error().Err(err).Str("principal", p.String()).Msg("could not load events")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load events"})
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{
		Principal: p,
		Balance:   lookup.BalanceAt(p, at, events),
		Sequence:  at,
	})
}

// handleSupply returns the total supply, optionally at a past sequence.
func (a *api) handleSupply(w http.ResponseWriter, r *http.Request) {
	at, current, ok := a.resolveSequence(w, r)
	if !ok {
		return
	}

	if at == current {
		supply, err := a.ledger.GetTotalSupply(r.Context())
		if err != nil {
			a.log.Error().Err(err).Msg("could not load supply")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load supply"})
			return
		}
		writeJSON(w, http.StatusOK, SupplyResponse{Supply: supply, Sequence: current})
		return
	}

	events, err := a.events.GetAll(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("could not load events")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load events"})
		return
	}
	supply, err := lookup.SupplyAt(at, events)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, SupplyResponse{Supply: supply, Sequence: at})
}

// resolveSequence parses the optional ?at= parameter against the current
// sequence. It writes the error response itself and reports ok=false.
func (a *api) resolveSequence(w http.ResponseWriter, r *http.Request) (at, current uint64, ok bool) {
	state, err := a.store.State(r.Context())
	if err != nil {
		a.log.Error().Err(err).Msg("could not load ledger state")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not load ledger state"})
		return 0, 0, false
	}
	current = state.Sequence

	raw := r.URL.Query().Get("at")
	if raw == "" {
		return current, current, true
	}
	at, err = strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "at must be a sequence number"})
		return 0, 0, false
	}
	if at > current {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: lookup.ErrFutureSequence.Error()})
		return 0, 0, false
	}
	return at, current, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
