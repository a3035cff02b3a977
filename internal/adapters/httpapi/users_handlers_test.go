package httpapi

import (
	"net/http"
	"testing"
)

func TestUsers_GetMe_NotProvisioned_404(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	rec := api.do(t, http.MethodGet, "/users/me", "sub-1", nil)
	requireError(t, rec, http.StatusNotFound, "USER_NOT_PROVISIONED")
}

func TestUsers_CreateThenGetMe_200(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	id := api.provision(t, "sub-1", "  Alice   Smith ")

	rec := api.do(t, http.MethodGet, "/users/me", "sub-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	got := decode[UserResponse](t, rec).User
	if got.UserId != id {
		t.Fatalf("userId=%q want=%q", got.UserId, id)
	}
	if got.DisplayName != "Alice Smith" {
		t.Fatalf("displayName=%q", got.DisplayName)
	}
}

func TestUsers_CreateTwice_409(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "sub-1", "Alice")

	rec := api.do(t, http.MethodPost, "/users", "sub-1", map[string]any{"displayName": "Alice", "email": "a@example.com"})
	requireError(t, rec, http.StatusConflict, "USER_ALREADY_EXISTS")
}

func TestUsers_Create_Validation_422(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	cases := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"missing display name", map[string]any{"email": "a@example.com"}},
		{"bad email", map[string]any{"displayName": "Alice", "email": "not-an-email"}},
	}
	for _, tc := range cases {
		rec := api.do(t, http.MethodPost, "/users", "sub-1", tc.body)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("%s: status=%d body=%s", tc.name, rec.Code, rec.Body.String())
		}
		if code := decode[ErrorResponse](t, rec).Error.Code; code != "VALIDATION_ERROR" {
			t.Fatalf("%s: code=%q", tc.name, code)
		}
	}
}

func TestUsers_DeleteMe_ReleasesRSVPsAndPromotes(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t)
	api.provision(t, "alice", "Alice")
	bobID := api.provision(t, "bob", "Bob")
	sess := api.createSession(t, "alice", map[string]any{"title": "Keynote", "maxCapacity": 1})

	if rec := api.do(t, http.MethodPut, "/sessions/"+sess.SessionId+"/rsvp", "alice", nil); rec.Code != http.StatusOK {
		t.Fatalf("alice rsvp: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := api.do(t, http.MethodPut, "/sessions/"+sess.SessionId+"/rsvp", "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("bob rsvp: status=%d body=%s", rec.Code, rec.Body.String())
	}

	if rec := api.do(t, http.MethodDelete, "/users/me", "alice", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec := api.do(t, http.MethodGet, "/sessions/"+sess.SessionId+"/rsvps", "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status=%d body=%s", rec.Code, rec.Body.String())
	}
	attendees := decode[AttendeesResponse](t, rec).Attendees
	if len(attendees) != 1 || attendees[0].UserId != bobID || attendees[0].State != "GOING" {
		t.Fatalf("unexpected attendees: %+v", attendees)
	}

	requireError(t, api.do(t, http.MethodGet, "/users/me", "alice", nil), http.StatusNotFound, "USER_NOT_PROVISIONED")
}
