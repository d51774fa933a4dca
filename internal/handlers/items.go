package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

type createItemRequest struct {
	SellerID     uuid.UUID        `json:"seller_id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	StartPrice   decimal.Decimal  `json:"start_price"`
	BidStep      decimal.Decimal  `json:"bid_step"`
	ReservePrice *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice  *decimal.Decimal `json:"buy_now_price,omitempty"`
	StartAt      time.Time        `json:"start_at"`
	EndAt        time.Time        `json:"end_at"`
}

func (h *Handler) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SellerID == uuid.Nil || req.Title == "" {
		respondError(w, http.StatusBadRequest, "seller_id and title are required")
		return
	}
	if !req.StartPrice.IsPositive() || !req.BidStep.IsPositive() {
		respondError(w, http.StatusBadRequest, "start_price and bid_step must be positive")
		return
	}
	if !req.EndAt.After(req.StartAt) {
		respondError(w, http.StatusBadRequest, "end_at must be after start_at")
		return
	}
	if req.BuyNowPrice != nil && req.BuyNowPrice.LessThanOrEqual(req.StartPrice) {
		respondError(w, http.StatusBadRequest, "buy_now_price must exceed start_price")
		return
	}

	now := time.Now().UTC()
	item := &models.AuctionItem{
		ID:           uuid.New(),
		SellerID:     req.SellerID,
		Title:        req.Title,
		Description:  req.Description,
		StartPrice:   req.StartPrice,
		CurrentPrice: req.StartPrice,
		BidStep:      req.BidStep,
		ReservePrice: req.ReservePrice,
		BuyNowPrice:  req.BuyNowPrice,
		Status:       models.ItemStatusListed,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.st.CreateItem(r.Context(), item); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}
