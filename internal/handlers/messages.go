package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/api/middleware"
	"github.com/l3v3l/courier/internal/metrics"
	"github.com/l3v3l/courier/internal/models"
	"github.com/l3v3l/courier/internal/store"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// PollResponse represents the poll response.
type PollResponse struct {
	Messages []models.Snapshot `json:"messages"`
}

// SendMessage handles message ingestion. The durable write happens
// first and decides the outcome; the queue push is best-effort and a
// failure there never surfaces to the sender.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	senderID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	recipientID, err := uuid.Parse(req.To)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid recipient ID format")
		return
	}

	body := sanitizeBody(req.Body)
	if body == "" {
		h.Error(w, http.StatusBadRequest, "body is required")
		return
	}
	if utf8.RuneCountInString(body) > models.MaxBodyLength {
		h.Error(w, http.StatusBadRequest, "body too long (max 1000 characters)")
		return
	}

	if _, err := h.db.GetUserByID(r.Context(), recipientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "recipient not found")
			return
		}
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	m := models.NewMessage(senderID, recipientID, body)

	start := time.Now()
	if err := h.db.AppendMessage(r.Context(), m); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store message")
		return
	}
	metrics.DurableWriteLatency.Observe(time.Since(start).Seconds())

	snapshot := m.Snapshot()

	// The message is durable at this point. Queue and counter updates
	// may fail without affecting the response; recipients fall back to
	// the durable log.
	if err := h.queue.Push(r.Context(), snapshot.To, snapshot); err != nil {
		metrics.QueuePushFailures.Inc()
	}
	if err := h.queue.IncrementUnread(r.Context(), snapshot.To, snapshot.From); err != nil {
		metrics.QueuePushFailures.Inc()
	}

	metrics.MessagesSent.Inc()

	h.JSON(w, http.StatusOK, snapshot)
}

// PollMessages returns queue entries for a recipient strictly newer
// than the client's cursor, oldest first. A fast store outage is a
// distinct 503, never an empty result.
func (h *Handler) PollMessages(w http.ResponseWriter, r *http.Request) {
	userIDStr := chi.URLParam(r, "userId")
	userID, err := uuid.Parse(userIDStr)
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

	// An unparseable cursor means "from the beginning", not an error.
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		since = 0
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
			if limit < 1 {
				limit = 1
			}
			if limit > 100 {
				limit = 100
			}
		}
	}

	entries, err := h.queue.Range(r.Context(), userID.String(), since, limit)
	if err != nil {
		metrics.PollRequests.WithLabelValues("unavailable").Inc()
		h.Error(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}

	// Polling doubles as a heartbeat.
	_ = h.queue.SetOnline(r.Context(), userID.String())

	if len(entries) == 0 {
		metrics.PollRequests.WithLabelValues("empty").Inc()
	} else {
		metrics.PollRequests.WithLabelValues("ok").Inc()
	}

	h.JSON(w, http.StatusOK, PollResponse{Messages: entries})
}
