package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/ids"
	"github.com/l3v3l/courier/internal/metrics"
	"github.com/l3v3l/courier/internal/store"
)

// RegisterUserRequest represents the directory sync request body. The
// platform may supply its own user ID; one is assigned otherwise.
type RegisterUserRequest struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// UserResponse represents a directory entry in API responses.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	Online    bool      `json:"online"`
}

// RegisterUser mirrors a platform account into the directory.
// Re-registering an existing username is idempotent.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return
	}
	if !isValidUsername(req.Username) {
		h.Error(w, http.StatusBadRequest, "username must be 2-64 characters, alphanumeric with dots, hyphens and underscores only")
		return
	}

	id := ids.NewUUIDv7()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "invalid user ID format")
			return
		}
		id = parsed
	}

	// Check if username already registered
	existing, err := h.db.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		// Return existing entry (idempotent registration)
		h.JSON(w, http.StatusOK, UserResponse{
			ID:        existing.ID.String(),
			Username:  existing.Username,
			CreatedAt: existing.CreatedAt,
		})
		return
	}

	user, err := h.db.CreateUser(r.Context(), id, req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	metrics.UsersRegistered.Inc()

	h.JSON(w, http.StatusCreated, UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	})
}

// GetUser returns one directory entry by ID, with live presence.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userId"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	user, err := h.db.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	online, err := h.queue.IsOnline(r.Context(), user.ID.String())
	if err != nil {
		online = false
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		Online:    online,
	})
}

// LookupUser resolves a username to a directory entry.
func (h *Handler) LookupUser(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		h.Error(w, http.StatusBadRequest, "username query parameter is required")
		return
	}

	user, err := h.db.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	online, err := h.queue.IsOnline(r.Context(), user.ID.String())
	if err != nil {
		online = false
	}

	h.JSON(w, http.StatusOK, UserResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
		Online:    online,
	})
}
