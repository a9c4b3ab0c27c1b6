package prom

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ServesRecordedMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewMetricsRecorder(Config{Registry: registry, Namespace: "bank"})
	recorder.IncCounter(context.Background(), "sca.authorise_psu.total", 1, map[string]string{
		"operation": "authorise_psu",
		"status":    "success",
	})

	server := httptest.NewServer(Handler(registry))
	defer server.Close()

	res, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if !strings.Contains(string(body), "bank_sca_authorise_psu_total{") {
		t.Fatalf("expected counter in exposition, got %s", body)
	}
	if !strings.Contains(string(body), `operation="authorise_psu"`) {
		t.Fatalf("expected operation label in exposition, got %s", body)
	}
}
