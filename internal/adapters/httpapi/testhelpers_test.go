package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memclock "github.com/conference-site/schedule-api/internal/adapters/memory/clock"
	memidempotency "github.com/conference-site/schedule-api/internal/adapters/memory/idempotency"
	memrsvprepo "github.com/conference-site/schedule-api/internal/adapters/memory/rsvprepo"
	memsessionrepo "github.com/conference-site/schedule-api/internal/adapters/memory/sessionrepo"
	memuserrepo "github.com/conference-site/schedule-api/internal/adapters/memory/userrepo"
	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/platform/metrics"
)

type testAPI struct {
	handler http.Handler
	clock   *memclock.ManualClock
}

// newTestAPI wires the router over the in-memory stores with dev auth (X-Debug-Subject, no default).
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	userRepo := memuserrepo.NewRepo()
	sessionRepo := memsessionrepo.NewRepo()
	rsvpRepo := memrsvprepo.NewRepo(sessionRepo, memrsvprepo.WithUsers(userRepo))
	userRepo.SetRecordGuard(rsvpRepo)
	reg := metrics.New()

	rsvpSvc := rsvps.NewService(rsvpRepo, userRepo, clk, rsvps.WithMetrics(reg.RSVP))
	sessionSvc := sessions.NewService(sessionRepo, rsvpSvc, clk, nil)
	userSvc := users.NewService(userRepo, rsvpSvc, clk, nil)

	api := NewServer(userSvc, sessionSvc, rsvpSvc, memidempotency.NewStore(), clk, nil)
	h := NewRouterWithOptions(api, RouterOptions{
		AuthMiddleware: NewDevAuthMiddleware(""),
		Metrics:        reg.Handler(),
	})
	return &testAPI{handler: h, clock: clk}
}

func (a *testAPI) do(t *testing.T, method, path, subject string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			r = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// provision creates a profile for subject and returns its user id.
func (a *testAPI) provision(t *testing.T, subject, name string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/users", subject, map[string]any{
		"displayName": name,
		"email":       subject + "@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("provision %s: status=%d body=%s", subject, rec.Code, rec.Body.String())
	}
	return decode[UserResponse](t, rec).User.UserId
}

func (a *testAPI) createSession(t *testing.T, subject string, body map[string]any) Session {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/sessions", subject, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session: status=%d body=%s", rec.Code, rec.Body.String())
	}
	return decode[SessionResponse](t, rec).Session
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status=%d want=%d body=%s", rec.Code, status, rec.Body.String())
	}
	er := decode[ErrorResponse](t, rec)
	if er.Error.Code != code {
		t.Fatalf("code=%q want=%q body=%s", er.Error.Code, code, rec.Body.String())
	}
}
