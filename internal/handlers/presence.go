package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/api/middleware"
	"github.com/l3v3l/courier/internal/store"
)

// OnlineUsersResponse represents the online users list.
type OnlineUsersResponse struct {
	Online []string `json:"online"`
	Count  int      `json:"count"`
}

// PresenceResponse represents one user's presence.
type PresenceResponse struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// OnlineUsers lists users whose presence is still live.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	online, err := h.queue.OnlineUsers(r.Context())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, OnlineUsersResponse{Online: online, Count: len(online)})
}

// GetPresence reports one user's presence.
func (h *Handler) GetPresence(w http.ResponseWriter, r *http.Request) {
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

	online, err := h.queue.IsOnline(r.Context(), userID.String())
	if err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, PresenceResponse{UserID: userID.String(), Online: online})
}

// GoOnline marks the caller online. Polling refreshes presence on its
// own; this is for clients that want to announce themselves before the
// first poll.
func (h *Handler) GoOnline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.queue.SetOnline(r.Context(), userID.String()); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "online"})
}

// GoOffline removes the caller's presence immediately instead of
// letting it expire.
func (h *Handler) GoOffline(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.queue.SetOffline(r.Context(), userID.String()); err != nil {
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "offline"})
}
