package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/conference-site/schedule-api/internal/adapters/backends"
	"github.com/conference-site/schedule-api/internal/adapters/httpapi"
	memclock "github.com/conference-site/schedule-api/internal/adapters/memory/clock"
	pgidempotency "github.com/conference-site/schedule-api/internal/adapters/postgres/idempotency"
	pgrsvprepo "github.com/conference-site/schedule-api/internal/adapters/postgres/rsvprepo"
	pgsessionrepo "github.com/conference-site/schedule-api/internal/adapters/postgres/sessionrepo"
	postgres_testutil "github.com/conference-site/schedule-api/internal/adapters/postgres/testutil"
	pguserrepo "github.com/conference-site/schedule-api/internal/adapters/postgres/userrepo"
	"github.com/conference-site/schedule-api/internal/adapters/sqlite/sqlitetest"
	"github.com/conference-site/schedule-api/internal/app/rsvps"
	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/app/users"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendSQLite   backend = "sqlite"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "sqlite":
		return []backend{backendSQLite}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendSQLite, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|sqlite|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	clock   *memclock.ManualClock
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	// Postgres truncates to microseconds; keep the manual clock on whole seconds.
	clk := memclock.NewManualClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	var stores *backends.Stores
	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		stores = &backends.Stores{
			Users:    pguserrepo.NewRepo(pool),
			Sessions: pgsessionrepo.NewRepo(pool),
			RSVPs:    pgrsvprepo.NewRepo(pool),
			Idem:     pgidempotency.NewStore(pool),
			Close:    func() {},
		}
	case backendSQLite:
		stores = backends.SQLite(sqlitetest.Open(t))
	case backendMemory:
		stores = backends.Memory()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	rsvpSvc := rsvps.NewService(stores.RSVPs, stores.Users, clk)
	api := httpapi.NewServer(
		users.NewService(stores.Users, rsvpSvc, clk, nil),
		sessions.NewService(stores.Sessions, rsvpSvc, clk, nil),
		rsvpSvc,
		stores.Idem,
		clk,
		nil,
	)

	// Dev auth with no default subject: requests MUST send X-Debug-Subject.
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{AuthMiddleware: httpapi.NewDevAuthMiddleware("")})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		clock:   clk,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestId string `json:"requestId"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	requireStatus(t, status, body, wantStatus)
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
