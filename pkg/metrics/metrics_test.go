package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistryExportsCounters(t *testing.T) {
	r := New()
	r.PacketsTransmitted.WithLabelValues("1").Inc()
	r.PacketsSucceeded.WithLabelValues("1").Inc()
	r.ReceptionRatio.Set(0.9)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "lora_sim_packets_transmitted_total") {
		t.Errorf("expected exposition output to contain packets_transmitted_total, got:\n%s", body)
	}
	if !strings.Contains(body, "lora_sim_packet_reception_ratio 0.9") {
		t.Errorf("expected reception ratio gauge set to 0.9, got:\n%s", body)
	}
}

func TestTwoRegistriesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.PacketsTransmitted.WithLabelValues("1").Inc()
	b.PacketsTransmitted.WithLabelValues("1").Inc()
	b.PacketsTransmitted.WithLabelValues("1").Inc()

	reqA := httptest.NewRequest("GET", "/metrics", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)
	if !strings.Contains(recA.Body.String(), `lora_sim_packets_transmitted_total{device="1"} 1`) {
		t.Errorf("registry a: expected count 1, got:\n%s", recA.Body.String())
	}

	reqB := httptest.NewRequest("GET", "/metrics", nil)
	recB := httptest.NewRecorder()
	b.Handler().ServeHTTP(recB, reqB)
	if !strings.Contains(recB.Body.String(), `lora_sim_packets_transmitted_total{device="1"} 2`) {
		t.Errorf("registry b: expected count 2, got:\n%s", recB.Body.String())
	}
}
