package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("gate", "has_feature"),
		attribute.String("user_id", "456"),
		attribute.String("result", "allowed"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "user_id" {
			t.Fatalf("expected user_id to be dropped")
		}
	}
}

func TestRecordAuthorizationDecision(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "test"}, provider)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	ctx := context.Background()
	m.RecordAuthorizationDecision(ctx, "has_action", true)
	m.RecordAuthorizationDecision(ctx, "has_action", false)
	m.RecordAuthorizationDecision(ctx, "has_action", false)
	m.RecordPermissionCache(ctx, true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value("result")
				totals[metric.Name+"/"+result.AsString()] += dp.Value
			}
		}
	}
	if totals["backoffice_authorization_decisions_total/allowed"] != 1 {
		t.Fatalf("expected 1 allowed decision, got %v", totals)
	}
	if totals["backoffice_authorization_decisions_total/denied"] != 2 {
		t.Fatalf("expected 2 denied decisions, got %v", totals)
	}
	if totals["backoffice_permission_cache_total/hit"] != 1 {
		t.Fatalf("expected 1 cache hit, got %v", totals)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordAuthorizationDecision(context.Background(), "route", true)
	m.RecordPermissionCache(context.Background(), false)

	var lm *LifecycleMetrics
	lm.RecordTransition("merchant", "PENDING", "ACTIVE", ResultOK)
	lm.RecordJobRun("expire", time.Second, nil)
}

func TestRecordTransition(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetrics(registry, Config{ServiceName: "backoffice", Environment: "test"})

	m.RecordTransition("Merchant", "PENDING", "ACTIVE", ResultOK)
	m.RecordTransition("merchant", "PENDING", "ACTIVE", ResultOK)
	m.RecordTransition("merchant", "PENDING", "ACTIVE", ResultConflict)

	got := testutil.ToFloat64(m.transitions.WithLabelValues("merchant", "PENDING", "ACTIVE", ResultOK))
	if got != 2 {
		t.Fatalf("expected 2 ok transitions, got %v", got)
	}
}

func TestRecordJobRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetrics(registry, Config{})

	m.RecordJobRun("expire_subscriptions", 250*time.Millisecond, nil)
	m.RecordJobRun("expire_subscriptions", time.Second, context.DeadlineExceeded)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("expire_subscriptions", JobResultOK)); got != 1 {
		t.Fatalf("expected 1 ok run, got %v", got)
	}

	observer := m.jobDuration.WithLabelValues("expire_subscriptions")
	var out dto.Metric
	if err := observer.(prometheus.Metric).Write(&out); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if out.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", out.GetHistogram().GetSampleCount())
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newLifecycleMetrics(registry, Config{})
	second := newLifecycleMetrics(registry, Config{})

	first.RecordTransition("subscription", "TRIAL", "EXPIRED", ResultOK)
	if got := testutil.ToFloat64(second.transitions.WithLabelValues("subscription", "TRIAL", "EXPIRED", ResultOK)); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestClassifyJobResult(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: JobResultOK},
		{name: "deadline", err: fmt.Errorf("wrap: %w", context.DeadlineExceeded), want: JobResultTimeout},
		{name: "lock", err: &pgconn.PgError{Code: "55P03"}, want: JobResultLockWait},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: JobResultSerialize},
		{name: "other", err: errors.New("boom"), want: JobResultError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobResult(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestHTTPMiddlewareObservesRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/roles/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/roles/1", "/roles/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected a single route series, got %d", got)
	}
}
