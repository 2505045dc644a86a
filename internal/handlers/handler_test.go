package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/l3v3l/courier/internal/api"
	"github.com/l3v3l/courier/internal/api/middleware"
	"github.com/l3v3l/courier/internal/handlers"
	"github.com/l3v3l/courier/internal/models"
	"github.com/l3v3l/courier/internal/store"
)

// env runs the full router against a real SQLite file and a miniredis
// instance, so tests exercise the same store paths production does.
type env struct {
	t   *testing.T
	srv *httptest.Server
	db  *store.SQLiteStore
	rd  *store.RedisStore
	mr  *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rd, err := store.NewRedisStore(ctx, "redis://"+mr.Addr())
	if err != nil {
		t.Fatal(err)
	}
	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "courier.db"))
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(api.NewRouter(zerolog.Nop(), db, rd, middleware.RateLimiterConfig{}))
	t.Cleanup(func() {
		srv.Close()
		rd.Close()
		db.Close()
	})

	return &env{t: t, srv: srv, db: db, rd: rd, mr: mr}
}

// do sends a request, optionally with an identity header and a JSON
// body, and decodes the response into out when out is non-nil.
func (e *env) do(method, path, userID string, body, out interface{}) int {
	e.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		e.t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			e.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *env) register(username string) string {
	e.t.Helper()
	var user handlers.UserResponse
	status := e.do("POST", "/users", "", handlers.RegisterUserRequest{Username: username}, &user)
	if status != http.StatusCreated {
		e.t.Fatalf("register %s: status %d", username, status)
	}
	return user.ID
}

func (e *env) send(fromID, toID, body string) models.Snapshot {
	e.t.Helper()
	var snapshot models.Snapshot
	status := e.do("POST", "/messages", fromID, handlers.SendMessageRequest{To: toID, Body: body}, &snapshot)
	if status != http.StatusOK {
		e.t.Fatalf("send: status %d", status)
	}
	return snapshot
}

// seed places entries directly on a recipient's queue, bypassing
// ingestion, for tests that need exact timestamps.
func (e *env) seed(toID string, entries ...models.Snapshot) {
	e.t.Helper()
	for _, s := range entries {
		if err := e.rd.Push(context.Background(), toID, s); err != nil {
			e.t.Fatal(err)
		}
	}
}

func (e *env) poll(userID, query string) (int, handlers.PollResponse) {
	e.t.Helper()
	var resp handlers.PollResponse
	status := e.do("GET", "/messages/poll/"+userID+query, userID, nil, &resp)
	return status, resp
}

// postRaw sends a request body verbatim, for malformed-input cases the
// typed helper cannot produce.
func (e *env) postRaw(path, userID, body string) int {
	e.t.Helper()

	req, err := http.NewRequest("POST", e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		e.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	resp.Body.Close()
	return resp.StatusCode
}
