// Package handlers exposes the engine's HTTP API. Route shapes follow the
// gateway conventions: JSON in, JSON out, errors as {"error": ...} with the
// status code carrying the taxonomy.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/zigaf/car-auction-sub000/internal/auth"
	"github.com/zigaf/car-auction-sub000/internal/bidding"
	"github.com/zigaf/car-auction-sub000/internal/ledger"
	"github.com/zigaf/car-auction-sub000/internal/models"
	"github.com/zigaf/car-auction-sub000/internal/store"
)

type contextKey string

const identityKey contextKey = "identity"

// Handler holds the services the HTTP API fronts.
type Handler struct {
	bids     *bidding.Service
	ledger   *ledger.Service
	st       store.Store
	verifier *auth.Verifier
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewHandler builds the API handler.
func NewHandler(bids *bidding.Service, led *ledger.Service, st store.Store, verifier *auth.Verifier, limiter *rate.Limiter, log *slog.Logger) *Handler {
	return &Handler{bids: bids, ledger: led, st: st, verifier: verifier, limiter: limiter, log: log}
}

// SetupRoutes configures all HTTP routes.
func (h *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(h.loggingMiddleware)
	api.Use(h.authMiddleware)

	api.HandleFunc("/items/{id}", h.getItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/bids", h.listItemBids).Methods(http.MethodGet)
	api.Handle("/items/{id}/bids", h.rateLimited(h.placeBid)).Methods(http.MethodPost)
	api.Handle("/items/{id}/proxy-bids", h.rateLimited(h.placeProxyBid)).Methods(http.MethodPost)
	api.Handle("/items/{id}/buy-now", h.rateLimited(h.buyNow)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/order", h.getItemOrder).Methods(http.MethodGet)
	api.HandleFunc("/users/me/bids", h.listMyBids).Methods(http.MethodGet)
	api.HandleFunc("/users/me/balance", h.getBalance).Methods(http.MethodGet)
	api.HandleFunc("/users/me/ledger", h.listMyLedger).Methods(http.MethodGet)

	api.HandleFunc("/bids/{id}/rollback", h.adminOnly(h.rollbackBid)).Methods(http.MethodPost)
	api.HandleFunc("/items", h.adminOnly(h.createItem)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/activate", h.adminOnly(h.activateItem)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/relist", h.adminOnly(h.relistItem)).Methods(http.MethodPost)
	api.HandleFunc("/items/{id}/cancel", h.adminOnly(h.cancelItem)).Methods(http.MethodPost)
	api.HandleFunc("/accounts/{id}/deposit", h.adminOnly(h.deposit)).Methods(http.MethodPost)
	api.HandleFunc("/bot-configs", h.adminOnly(h.createBotConfig)).Methods(http.MethodPost)
	api.HandleFunc("/bot-configs", h.adminOnly(h.listBotConfigs)).Methods(http.MethodGet)
	api.HandleFunc("/bot-configs/{id}", h.adminOnly(h.getBotConfig)).Methods(http.MethodGet)
	api.HandleFunc("/bot-configs/{id}", h.adminOnly(h.updateBotConfig)).Methods(http.MethodPut)
	api.HandleFunc("/bot-configs/{id}", h.adminOnly(h.deleteBotConfig)).Methods(http.MethodDelete)
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "auction-engine",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

type bidRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "idempotency_key is required")
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	result, err := h.bids.PlaceBid(r.Context(), identityFrom(r).Subject, itemID, req.Amount, req.IdempotencyKey)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type proxyBidRequest struct {
	Ceiling        decimal.Decimal `json:"ceiling"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) placeProxyBid(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req proxyBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IdempotencyKey == "" {
		respondError(w, http.StatusBadRequest, "idempotency_key is required")
		return
	}
	if !req.Ceiling.IsPositive() {
		respondError(w, http.StatusBadRequest, "ceiling must be positive")
		return
	}

	result, err := h.bids.PlaceProxyBid(r.Context(), identityFrom(r).Subject, itemID, req.Ceiling, req.IdempotencyKey)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) buyNow(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	result, err := h.bids.BuyNow(r.Context(), identityFrom(r).Subject, itemID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.bids.Item(r.Context(), itemID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (h *Handler) listItemBids(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	bids, err := h.bids.BidsForItem(r.Context(), itemID, limit, offset)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

func (h *Handler) listMyBids(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	bids, err := h.bids.BidsForBidder(r.Context(), identityFrom(r).Subject, limit, offset)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bids)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.ledger.Balance(r.Context(), identityFrom(r).Subject)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

func (h *Handler) getItemOrder(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, err := h.st.OrderForItem(r.Context(), itemID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *Handler) listMyLedger(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	if limit <= 0 {
		limit = 50
	}
	entries, err := h.ledger.Entries(r.Context(), identityFrom(r).Subject, limit, offset)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *Handler) rollbackBid(w http.ResponseWriter, r *http.Request) {
	bidID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	newPrice, err := h.bids.Rollback(r.Context(), bidID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"current_price": newPrice})
}

func (h *Handler) activateItem(w http.ResponseWriter, r *http.Request) {
	h.itemTransition(w, r, h.bids.ActivateItem)
}

func (h *Handler) relistItem(w http.ResponseWriter, r *http.Request) {
	h.itemTransition(w, r, h.bids.RelistItem)
}

func (h *Handler) cancelItem(w http.ResponseWriter, r *http.Request) {
	h.itemTransition(w, r, h.bids.CancelItem)
}

func (h *Handler) itemTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uuid.UUID) (*models.AuctionItem, error)) {
	itemID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := fn(r.Context(), itemID)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

type depositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := h.ledger.Deposit(r.Context(), ownerID, req.Amount, req.Description)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// respondDomainError maps the error taxonomy onto HTTP status codes.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrForbidden):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrBelowMinimum),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrAuctionEnded):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("internal error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error, please retry")
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func identityFrom(r *http.Request) auth.Identity {
	id, _ := r.Context().Value(identityKey).(auth.Identity)
	return id
}

// authMiddleware verifies the bearer token and stores the identity in the
// request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		identity, err := h.verifier.Verify(token, time.Now())
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly rejects non-admin callers.
func (h *Handler) adminOnly(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r).IsAdmin() {
			respondError(w, http.StatusForbidden, "admin role required")
			return
		}
		fn(w, r)
	}
}

// rateLimited sheds load on the bid endpoints before any lock is taken.
func (h *Handler) rateLimited(fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		fn(w, r)
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Info("request", "method", r.Method, "uri", r.RequestURI, "duration", time.Since(start))
	})
}
