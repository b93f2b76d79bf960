package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yungbote/buoy-console/internal/gateway"
	"github.com/yungbote/buoy-console/internal/querycache"
)

var (
	_ querycache.Hooks = (*Metrics)(nil)
	_ gateway.Observer = (*Metrics)(nil)
)

func TestCacheHooksBalanceInflight(t *testing.T) {
	m := NewMetrics()

	m.FetchStarted("datasets")
	m.FetchStarted("datasets")
	if got := testutil.ToFloat64(m.cacheInflight.WithLabelValues("datasets")); got != 2 {
		t.Fatalf("inflight got=%v want=2", got)
	}
	m.FetchFinished("datasets", nil, 10*time.Millisecond)
	m.FetchFinished("datasets", &gateway.UnauthorizedError{LoginURL: "/login/"}, time.Millisecond)
	if got := testutil.ToFloat64(m.cacheInflight.WithLabelValues("datasets")); got != 0 {
		t.Fatalf("inflight got=%v want=0", got)
	}
	if got := testutil.ToFloat64(m.cacheFetches.WithLabelValues("datasets", "ok")); got != 1 {
		t.Fatalf("ok fetches got=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.cacheFetches.WithLabelValues("datasets", "unauthorized")); got != 1 {
		t.Fatalf("unauthorized fetches got=%v want=1", got)
	}
}

func TestFetchOutcome(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{context.Canceled, "canceled"},
		{errors.New("boom"), "error"},
		{&gateway.UnauthorizedError{}, "unauthorized"},
	}
	for _, tc := range cases {
		if got := fetchOutcome(tc.err); got != tc.want {
			t.Fatalf("fetchOutcome(%v) got=%q want=%q", tc.err, got, tc.want)
		}
	}
}

func TestLookupsAndBackendRequests(t *testing.T) {
	m := NewMetrics()
	m.Hit("dataset")
	m.Hit("dataset")
	m.Miss("dataset")
	m.Joined("dataset")
	m.Discarded("dataset")
	m.ObserveRequest("GET", "datasets.list", gateway.KindOK, 200, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.cacheLookups.WithLabelValues("dataset", "hit")); got != 2 {
		t.Fatalf("hits got=%v want=2", got)
	}
	if got := testutil.ToFloat64(m.cacheDiscards.WithLabelValues("dataset")); got != 1 {
		t.Fatalf("discards got=%v want=1", got)
	}
	if got := testutil.ToFloat64(m.backendRequests.WithLabelValues("GET", "datasets.list", "ok", "200")); got != 1 {
		t.Fatalf("backend requests got=%v want=1", got)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	sessions := 3.0
	m.RegisterGaugeFunc("sessions", "Live sessions.", func() float64 { return sessions })
	m.ObserveHTTP("GET", "/manage/", 200, time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		"console_sessions 3",
		`console_http_requests_total{method="GET",route="/manage/",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.Hit("x")
	m.FetchStarted("x")
	m.FetchFinished("x", nil, 0)
	m.ObserveHTTP("GET", "/", 200, 0)
	m.ObserveRequest("GET", "r", gateway.KindFailed, 500, 0)
	m.RegisterGaugeFunc("n", "h", func() float64 { return 1 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status got=%d want=%d", rec.Code, http.StatusServiceUnavailable)
	}
}
