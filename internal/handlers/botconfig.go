package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

type botConfigRequest struct {
	UserID             uuid.UUID       `json:"user_id"`
	ItemID             uuid.UUID       `json:"item_id"`
	MaxPrice           decimal.Decimal `json:"max_price"`
	Pattern            string          `json:"pattern"`
	Active             bool            `json:"active"`
	MinDelaySecs       int             `json:"min_delay_secs"`
	MaxDelaySecs       int             `json:"max_delay_secs"`
	StartBeforeEndSecs *int            `json:"start_before_end_secs,omitempty"`
	Intensity          float64         `json:"intensity"`
}

func (req *botConfigRequest) validate() string {
	if req.UserID == uuid.Nil || req.ItemID == uuid.Nil {
		return "user_id and item_id are required"
	}
	if !req.MaxPrice.IsPositive() {
		return "max_price must be positive"
	}
	if !models.BotPattern(req.Pattern).Valid() {
		return "unknown pattern"
	}
	if req.MinDelaySecs < 0 || req.MaxDelaySecs < req.MinDelaySecs {
		return "delay range is invalid"
	}
	return ""
}

func (req *botConfigRequest) apply(cfg *models.BotConfig) {
	cfg.UserID = req.UserID
	cfg.ItemID = req.ItemID
	cfg.MaxPrice = req.MaxPrice
	cfg.Pattern = models.BotPattern(req.Pattern)
	cfg.Active = req.Active
	cfg.MinDelay = time.Duration(req.MinDelaySecs) * time.Second
	cfg.MaxDelay = time.Duration(req.MaxDelaySecs) * time.Second
	cfg.StartBeforeEnd = nil
	if req.StartBeforeEndSecs != nil {
		d := time.Duration(*req.StartBeforeEndSecs) * time.Second
		cfg.StartBeforeEnd = &d
	}
	cfg.Intensity = req.Intensity
}

func (h *Handler) createBotConfig(w http.ResponseWriter, r *http.Request) {
	var req botConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	now := time.Now().UTC()
	cfg := &models.BotConfig{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	req.apply(cfg)
	if err := h.st.CreateBotConfig(r.Context(), cfg); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cfg)
}

func (h *Handler) listBotConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.st.BotConfigs(r.Context())
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, configs)
}

func (h *Handler) getBotConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cfg, err := h.st.BotConfig(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) updateBotConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req botConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	cfg, err := h.st.BotConfig(r.Context(), id)
	if err != nil {
		h.respondDomainError(w, err)
		return
	}
	req.apply(cfg)
	cfg.UpdatedAt = time.Now().UTC()
	if err := h.st.UpdateBotConfig(r.Context(), cfg); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) deleteBotConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.st.DeleteBotConfig(r.Context(), id); err != nil {
		h.respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
