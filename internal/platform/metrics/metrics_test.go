package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistry_RSVPCounters(t *testing.T) {
	t.Parallel()

	r := New()
	r.RSVP.Outcomes.WithLabelValues("rsvp", "GOING").Inc()
	r.RSVP.Promotions.Inc()
	r.RSVP.Promotions.Inc()

	if got := testutil.ToFloat64(r.RSVP.Outcomes.WithLabelValues("rsvp", "GOING")); got != 1 {
		t.Fatalf("outcomes=%v, want 1", got)
	}
	if got := testutil.ToFloat64(r.RSVP.Promotions); got != 2 {
		t.Fatalf("promotions=%v, want 2", got)
	}

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics err=%v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rsvp_waitlist_promotions_total 2") {
		t.Fatalf("exposition missing promotions counter:\n%s", body)
	}
}
