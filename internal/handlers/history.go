package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/models"
	"github.com/l3v3l/courier/internal/store"
)

// HistoryResponse represents a page of conversation history.
type HistoryResponse struct {
	Messages []models.Snapshot `json:"messages"`
	HasMore  bool              `json:"has_more"`
}

// ConversationResponse represents one conversation summary.
type ConversationResponse struct {
	PartnerID       string `json:"partner_id"`
	PartnerUsername string `json:"partner_username"`
	LastFrom        string `json:"last_from"`
	LastBody        string `json:"last_body"`
	LastTimestamp   int64  `json:"last_timestamp"`
	UnreadCount     int64  `json:"unread_count"`
}

// ConversationsResponse represents the conversations list.
type ConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ConversationHistory serves pages of the durable log for one partner
// pair, newest first. This is the backfill path when a recipient's
// queue was trimmed or lost.
func (h *Handler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.db.GetUserByID(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if _, err := h.db.GetUserByID(r.Context(), partnerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "partner not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	before := time.Now().UTC()
	if v := r.URL.Query().Get("before"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			before = time.UnixMilli(ms).UTC()
		}
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
			if limit > 100 {
				limit = 100
			}
		}
	}

	messages, err := h.db.ConversationMessages(r.Context(), userID, partnerID, before, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch history")
		return
	}

	snapshots := make([]models.Snapshot, len(messages))
	for i := range messages {
		snapshots[i] = messages[i].Snapshot()
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		Messages: snapshots,
		HasMore:  len(messages) == limit,
	})
}

// ListConversations returns one summary per partner, most recently
// active first. Unread counts come from the fast store and degrade to
// zero when it is unreachable; the summaries themselves are durable.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
			if limit > 100 {
				limit = 100
			}
		}
	}

	conversations, err := h.db.ListConversations(r.Context(), userID, limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}

	unread, err := h.queue.UnreadCounts(r.Context(), userID.String())
	if err != nil {
		unread = nil
	}

	out := make([]ConversationResponse, len(conversations))
	for i, c := range conversations {
		out[i] = ConversationResponse{
			PartnerID:       c.PartnerID.String(),
			PartnerUsername: c.PartnerUsername,
			LastFrom:        c.LastSenderID.String(),
			LastBody:        c.LastBody,
			LastTimestamp:   c.LastCreatedAt.UnixMilli(),
			UnreadCount:     unread[c.PartnerID.String()],
		}
	}

	h.JSON(w, http.StatusOK, ConversationsResponse{Conversations: out})
}
