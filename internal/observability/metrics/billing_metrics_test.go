package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func newTestBillingMetrics(t *testing.T) (*BillingMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return newBillingMetrics(reg, Config{ServiceName: "subtrack-test", Environment: "test"}), reg
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, m := range fam.GetMetric() {
			have := map[string]string{}
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			if m.GetHistogram() != nil {
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestBillingMetricsCounters(t *testing.T) {
	m, reg := newTestBillingMetrics(t)

	m.IncJobRun("daily_sweep")
	m.IncJobRun("daily_sweep")
	m.IncBillGenerated()
	m.IncBackfillRecord()
	m.IncSweepItemFailure()
	m.IncNotificationFailure("bill.generated")

	if got := metricValue(t, reg, "subtrack_billing_job_runs_total", map[string]string{"job": "daily_sweep"}); got != 2 {
		t.Fatalf("job runs = %v, want 2", got)
	}
	if got := metricValue(t, reg, "subtrack_bills_generated_total", nil); got != 1 {
		t.Fatalf("bills generated = %v, want 1", got)
	}
	if got := metricValue(t, reg, "subtrack_notification_failures_total", map[string]string{"event": "bill.generated"}); got != 1 {
		t.Fatalf("notification failures = %v, want 1", got)
	}
}

func TestBillingMetricsConstLabels(t *testing.T) {
	m, reg := newTestBillingMetrics(t)
	m.IncJobRun("daily_sweep")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var fam *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "subtrack_billing_job_runs_total" {
			fam = f
		}
	}
	if fam == nil {
		t.Fatal("job runs family not found")
	}

	labels := map[string]string{}
	for _, lp := range fam.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	if labels["service"] != "subtrack-test" || labels["env"] != "test" {
		t.Fatalf("unexpected const labels: %v", labels)
	}
}

func TestClassifyJobReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", context.DeadlineExceeded, JobReasonDeadlineExceeded},
		{"wrapped deadline", errors.Join(errors.New("sweep"), context.DeadlineExceeded), JobReasonDeadlineExceeded},
		{"not found", gorm.ErrRecordNotFound, JobReasonNotFound},
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, JobReasonDBLockTimeout},
		{"serialization", &pgconn.PgError{Code: "40001"}, JobReasonSerializationFailure},
		{"pg unique", &pgconn.PgError{Code: "23505"}, JobReasonUniqueViolation},
		{"sqlite unique", errors.New("UNIQUE constraint failed: payment_records.subscription_id"), JobReasonUniqueViolation},
		{"other", errors.New("boom"), JobReasonUnknown},
		{"nil", nil, JobReasonUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("ClassifyJobReason = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBillingSingletonReset(t *testing.T) {
	ResetBillingMetricsForTest()
	t.Cleanup(ResetBillingMetricsForTest)

	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	t.Cleanup(func() { prometheus.DefaultRegisterer = prev })

	a := BillingWithConfig(Config{ServiceName: "a", Environment: "test"})
	b := Billing()
	if a != b {
		t.Fatal("expected singleton instance")
	}
}
