package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/l3v3l/courier/internal/store"
)

// usernameRegex limits usernames to a conservative handle alphabet.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{2,64}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db    store.DataStore
	queue store.Queue
}

// NewHandler creates a new Handler with the given stores.
func NewHandler(db store.DataStore, queue store.Queue) *Handler {
	return &Handler{db: db, queue: queue}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeBody trims surrounding whitespace and strips control
// characters other than newlines and tabs.
func sanitizeBody(body string) string {
	body = strings.TrimSpace(body)

	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, body)
}

// isValidUsername validates platform handles.
func isValidUsername(username string) bool {
	return usernameRegex.MatchString(username)
}
