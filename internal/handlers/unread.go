package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/api/middleware"
	"github.com/l3v3l/courier/internal/store"
)

// UnreadResponse represents per-sender unread counts.
type UnreadResponse struct {
	Unread map[string]int64 `json:"unread"`
	Total  int64            `json:"total"`
}

// MarkReadRequest represents the mark-read request body.
type MarkReadRequest struct {
	PartnerID string `json:"partner_id"`
}

// UnreadCounts returns the caller's unread counters keyed by sender.
// There is no durable fallback for counters, so a fast store outage
// is a 503 here.
func (h *Handler) UnreadCounts(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	if _, err := h.db.GetUserByID(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	counts, err := h.queue.UnreadCounts(r.Context(), userID.String())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	h.JSON(w, http.StatusOK, UnreadResponse{Unread: counts, Total: total})
}

// MarkRead clears the caller's unread counter for one partner.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	partnerID, err := uuid.Parse(req.PartnerID)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid partner ID format")
		return
	}

	if err := h.queue.ClearUnread(r.Context(), userID.String(), partnerID.String()); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
