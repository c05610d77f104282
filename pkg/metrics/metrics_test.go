package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "reservation-expiry"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := indexFamilies(families)

	if got := counterValue(t, byName["sweep_success_total"], job); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := counterValue(t, byName["sweep_failure_total"], job); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if byName["sweep_duration_seconds"] == nil {
		t.Fatal("expected duration histogram to be registered")
	}
}

func TestCirculationMetricsCountByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCirculationMetrics(reg)
	metrics.IncCheckout("success")
	metrics.IncCheckout("success")
	metrics.IncCheckout("rejected")
	metrics.IncReturn("success")
	metrics.IncReservation("")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := indexFamilies(families)

	if got := counterValue(t, byName["circulation_checkouts_total"], "success"); got != 2 {
		t.Fatalf("expected 2 successful checkouts, got %v", got)
	}
	if got := counterValue(t, byName["circulation_checkouts_total"], "rejected"); got != 1 {
		t.Fatalf("expected 1 rejected checkout, got %v", got)
	}
	if got := counterValue(t, byName["circulation_reservations_total"], "unknown"); got != 1 {
		t.Fatalf("expected empty outcome to normalize to unknown, got %v", got)
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var cron *CronJobMetrics
	cron.ObserveDuration("job", time.Second)
	cron.IncSuccess("job")
	cron.IncFailure("job")

	var circ *CirculationMetrics
	circ.IncCheckout("success")
	circ.IncReturn("success")
	circ.IncReservation("success")

	empty := NewCronJobMetrics(nil)
	empty.IncSuccess("job")
}

func indexFamilies(families []*dto.MetricFamily) map[string]*dto.MetricFamily {
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}
	return byName
}

func counterValue(t *testing.T, family *dto.MetricFamily, label string) float64 {
	t.Helper()
	if family == nil {
		t.Fatal("metric family not found")
	}
	for _, metric := range family.GetMetric() {
		for _, pair := range metric.GetLabel() {
			if pair.GetValue() == label {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("label %q not found", label)
	return 0
}
