package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnOpened()
	m.Record("/v1/chat/completions", 200, "claude-sonnet-4.5", 120*time.Millisecond)
	m.Record("/v1/chat/completions", 502, "claude-sonnet-4.5", 80*time.Millisecond)
	m.Record("/v1/messages", 200, "", 40*time.Millisecond)
	m.ConnClosed()

	snap := m.Snapshot()
	if snap.TotalRequests != 3 {
		t.Errorf("total = %d", snap.TotalRequests)
	}
	if snap.TotalErrors != 1 {
		t.Errorf("errors = %d", snap.TotalErrors)
	}
	if snap.ActiveConnections != 0 {
		t.Errorf("active = %d", snap.ActiveConnections)
	}
	if snap.ByEndpoint["/v1/chat/completions"] != 2 {
		t.Errorf("by endpoint = %+v", snap.ByEndpoint)
	}
	if snap.ByStatus[502] != 1 {
		t.Errorf("by status = %+v", snap.ByStatus)
	}
	if snap.ByModel["none"] != 1 {
		t.Errorf("missing model must be bucketed as none: %+v", snap.ByModel)
	}
	if snap.AvgLatencyMs <= 0 {
		t.Errorf("avg latency = %f", snap.AvgLatencyMs)
	}

	if got := testutil.CollectAndCount(m.requests); got != 3 {
		t.Errorf("prometheus series count = %d", got)
	}
}

func TestMetrics_RecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordError("validation")
	m.RecordError("upstream")
	m.RecordError("upstream")
	m.RecordError("") // unknown kind is dropped, not mislabeled

	snap := m.Snapshot()
	if snap.ErrorsByKind["validation"] != 1 || snap.ErrorsByKind["upstream"] != 2 {
		t.Errorf("errors by kind = %+v", snap.ErrorsByKind)
	}
	if len(snap.ErrorsByKind) != 2 {
		t.Errorf("unexpected kinds: %+v", snap.ErrorsByKind)
	}

	if got := testutil.CollectAndCount(m.errorsVec); got != 2 {
		t.Errorf("prometheus series count = %d", got)
	}
	if got := testutil.ToFloat64(m.errorsVec.WithLabelValues("upstream")); got != 2 {
		t.Errorf("upstream counter = %f", got)
	}
}

func TestStatusLabel(t *testing.T) {
	cases := map[int]string{200: "2xx", 301: "3xx", 404: "4xx", 502: "5xx"}
	for status, want := range cases {
		if got := statusLabel(status); got != want {
			t.Errorf("statusLabel(%d) = %q", status, got)
		}
	}
}
