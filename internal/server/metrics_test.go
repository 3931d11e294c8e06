package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gatherValue returns the value of the first metric in family name whose
// labels include the given label pair. Returns -1 when absent.
func gatherValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					match = true
				}
			}
			if !match {
				continue
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return -1
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{answer: "a"}, nil)

	w := doJSON(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Errorf("want 200, got %d", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_QueryCounterIncremented(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{answer: "a"}, nil)

	_ = doJSON(t, s, http.MethodPost, "/api/query", `{"question":"q"}`)

	got := gatherValue(t, s.registry, "marketpulse_query_requests_total", "outcome", "ok")
	if got != 1 {
		t.Errorf("marketpulse_query_requests_total{outcome=\"ok\"} = %v, want 1", got)
	}
}

func Test_Metrics_QueryOutcomeLabels(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	// Empty question counts as "invalid", not a dependency error.
	_ = doJSON(t, s, http.MethodPost, "/api/query", `{"question":" "}`)

	got := gatherValue(t, s.registry, "marketpulse_query_requests_total", "outcome", "invalid")
	if got != 1 {
		t.Errorf("marketpulse_query_requests_total{outcome=\"invalid\"} = %v, want 1", got)
	}
}

func Test_Metrics_ActiveStreamsGauge(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	s.metrics.wsActiveStreams.Inc()
	s.metrics.wsActiveStreams.Inc()

	got := gatherValue(t, s.registry, "marketpulse_ws_active_streams", "", "")
	if got != 2 {
		t.Errorf("marketpulse_ws_active_streams = %v, want 2", got)
	}
}

func Test_Metrics_HTTPRequestsByHandler(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{answer: "a"}, nil)

	_ = doJSON(t, s, http.MethodGet, "/api/health", "")

	got := gatherValue(t, s.registry, "marketpulse_http_requests_total", labelHandler, "health")
	if got != 1 {
		t.Errorf("marketpulse_http_requests_total{handler=\"health\"} = %v, want 1", got)
	}
}

func Test_ObserveQuery(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t, &fakeAsker{}, nil)

	s.observeQuery("embed_error", 50*time.Millisecond)

	got := gatherValue(t, s.registry, "marketpulse_query_requests_total", "outcome", "embed_error")
	if got != 1 {
		t.Errorf("marketpulse_query_requests_total{outcome=\"embed_error\"} = %v, want 1", got)
	}
}
