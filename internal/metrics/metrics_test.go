package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordTx("labels.create", "committed", 3*time.Millisecond)
	m.RecordHTTPRequest("GET", "/api/v1/labels/{labelID}", "200", time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"labelengine_store_transactions_total",
		"labelengine_http_requests_total",
		"labelengine_http_request_duration_seconds",
	} {
		if !names[want] {
			t.Errorf("missing metric family %s", want)
		}
	}
	if got := CounterValue(m.TxTotal.WithLabelValues("labels.create", "committed")); got != 1 {
		t.Fatalf("tx counter = %v", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	a, b := NewNop(), NewNop()
	a.GateRejectionsTotal.WithLabelValues("SUBMITTED").Inc()
	if got := CounterValue(b.GateRejectionsTotal.WithLabelValues("SUBMITTED")); got != 0 {
		t.Fatalf("registries leaked: %v", got)
	}
}
