package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/api/middleware"
)

// TypingRequest represents the typing notification body.
type TypingRequest struct {
	To string `json:"to"`
}

// SetTyping records that the caller is typing to a recipient. The
// indicator expires on its own after a few seconds.
func (h *Handler) SetTyping(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	recipientID, err := uuid.Parse(req.To)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid recipient ID format")
		return
	}

	if err := h.queue.SetTyping(r.Context(), senderID.String(), recipientID.String()); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetTyping reports whether a partner is currently typing to a user.
func (h *Handler) GetTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}
	partnerID, err := uuid.Parse(chi.URLParam(r, "partnerId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid partner ID format")
		return
	}

	typing, err := h.queue.IsTyping(r.Context(), userID.String(), partnerID.String())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, map[string]bool{"typing": typing})
}
