package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

type obsdata struct {
	received  int
	unmatched int
	rejected  int
	sent      int
	connects  int
}

func waitForDevice(t *testing.T, port int) {
	t.Helper()
	if err := waitForHealth(port, http.StatusOK, msgTimeout); err != nil {
		t.Fatalf("device not healthy: %s", err)
	}
}

func waitForHealth(port, status int, timeout time.Duration) error {
	url := fmt.Sprintf("http://localhost:%d/healthz", port)
	last := 0
	start := time.Now()
	for time.Since(start) < timeout {
		resp, err := http.Get(url)
		if err == nil {
			last = resp.StatusCode
			_ = resp.Body.Close()
			if last == status {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("%s: want status %d, last %d", url, status, last)
}

func getMetrics(port int) (map[string]*dto.MetricFamily, error) {
	url := fmt.Sprintf("http://localhost:%d/metrics", port)
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("could not get metrics (%s): %w", url, err)
	}
	defer resp.Body.Close()
	var parser expfmt.TextParser
	return parser.TextToMetricFamilies(resp.Body)
}

func counter(mf map[string]*dto.MetricFamily, name string) int {
	fam, ok := mf[name]
	if !ok || len(fam.Metric) == 0 || fam.Metric[0].Counter == nil {
		return -1
	}
	return int(fam.Metric[0].Counter.GetValue())
}

func waitForCounter(t *testing.T, port int, name string, expected int) error {
	t.Helper()
	got := -1
	start := time.Now()
	for time.Since(start) < msgTimeout {
		mf, err := getMetrics(port)
		if err == nil {
			if got = counter(mf, name); got == expected {
				return nil
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("counter %s: expected %d, got %d", name, expected, got)
}

func verifyCounter(t *testing.T, mf map[string]*dto.MetricFamily, name string, expected int) {
	t.Helper()
	if got := counter(mf, name); got != expected {
		t.Errorf("Observed counter %s mismatch, expected %d, got %d", name, expected, got)
	}
}

func verifyObsdata(t *testing.T, port int, want obsdata) {
	t.Helper()
	mf, err := getMetrics(port)
	if err != nil {
		t.Fatalf("TextToMetricFamilies failed: %s", err)
	}
	verifyCounter(t, mf, "meem_inbound_received", want.received)
	verifyCounter(t, mf, "meem_inbound_unmatched", want.unmatched)
	verifyCounter(t, mf, "meem_inbound_rejected", want.rejected)
	verifyCounter(t, mf, "meem_outbound_sent", want.sent)
	verifyCounter(t, mf, "meem_outbound_errors", 0)
	verifyCounter(t, mf, "meem_connects", want.connects)
	verifyCounter(t, mf, "meem_connect_errors", 0)
}
