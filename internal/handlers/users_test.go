package handlers_test

import (
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/l3v3l/courier/internal/handlers"
)

func TestRegisterIdempotent(t *testing.T) {
	e := newEnv(t)

	var first handlers.UserResponse
	status := e.do("POST", "/users", "", handlers.RegisterUserRequest{Username: "ana"}, &first)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on first registration, got %d", status)
	}
	if first.ID == "" || first.Username != "ana" {
		t.Fatalf("unexpected registration response: %+v", first)
	}
	if _, err := uuid.Parse(first.ID); err != nil {
		t.Fatalf("expected a UUID, got %q", first.ID)
	}

	var second handlers.UserResponse
	status = e.do("POST", "/users", "", handlers.RegisterUserRequest{Username: "ana"}, &second)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on re-registration, got %d", status)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the original entry back, got %s then %s", first.ID, second.ID)
	}
}

func TestRegisterHonorsPlatformID(t *testing.T) {
	e := newEnv(t)

	platformID := uuid.NewString()
	var user handlers.UserResponse
	status := e.do("POST", "/users", "",
		handlers.RegisterUserRequest{ID: platformID, Username: "gateway-user"}, &user)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if user.ID != platformID {
		t.Fatalf("expected the platform-supplied ID %s, got %s", platformID, user.ID)
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing username", `{}`},
		{"blank username", `{"username":"   "}`},
		{"too short", `{"username":"a"}`},
		{"too long", `{"username":"` + strings.Repeat("a", 65) + `"}`},
		{"bad characters", `{"username":"no spaces!"}`},
		{"bad id", `{"id":"nope","username":"fine"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := e.postRaw("/users", "", tc.body); got != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", got)
			}
		})
	}
}

func TestGetAndLookupUser(t *testing.T) {
	e := newEnv(t)
	ana := e.register("ana")

	var byID handlers.UserResponse
	if status := e.do("GET", "/users/"+ana, "", nil, &byID); status != http.StatusOK {
		t.Fatalf("get by ID: status %d", status)
	}
	if byID.Username != "ana" || byID.Online {
		t.Fatalf("unexpected entry: %+v", byID)
	}

	var byName handlers.UserResponse
	if status := e.do("GET", "/users?username=ana", "", nil, &byName); status != http.StatusOK {
		t.Fatalf("lookup: status %d", status)
	}
	if byName.ID != ana {
		t.Fatalf("expected %s, got %s", ana, byName.ID)
	}

	// Presence shows up on directory reads.
	if status := e.do("POST", "/presence/online", ana, nil, nil); status != http.StatusOK {
		t.Fatal("go online failed")
	}
	e.do("GET", "/users/"+ana, "", nil, &byID)
	if !byID.Online {
		t.Fatal("expected online flag after going online")
	}

	if status := e.do("GET", "/users/not-a-uuid", "", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed ID, got %d", status)
	}
	if status := e.do("GET", "/users/"+uuid.NewString(), "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown ID, got %d", status)
	}
	if status := e.do("GET", "/users?username=ghost", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown username, got %d", status)
	}
	if status := e.do("GET", "/users", "", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing username parameter, got %d", status)
	}
}
