package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Strob0t/TaskDealer/internal/config"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := m.Name
				if v, ok := dp.Attributes.Value(attribute.Key("outcome")); ok {
					key += "{" + v.AsString() + "}"
				}
				sums[key] += dp.Value
			}
		}
	}
	return sums
}

func TestRecordUpload(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	m.RecordUpload(ctx, OutcomeOK, 5, 2, 5, 10*time.Millisecond)
	m.RecordUpload(ctx, "parse_failure", 0, 0, 0, time.Millisecond)

	sums := collectSums(t, reader)
	want := map[string]int64{
		"taskdealer.uploads{ok}":            1,
		"taskdealer.uploads{parse_failure}": 1,
		"taskdealer.rows.accepted":          5,
		"taskdealer.rows.dropped":           2,
		"taskdealer.tasks.distributed":      5,
	}
	for k, v := range want {
		if sums[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, sums[k], v, sums)
		}
	}
}

func TestStageSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, root := StartUploadSpan(context.Background(), "leads.csv", "csv")
	_, stage := StartStageSpan(ctx, "parsed")
	EndSpan(stage, errors.New("boom"))
	EndSpan(root, nil)

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "upload.parsed" {
		t.Errorf("stage span name = %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("stage span status = %v, want error", spans[0].Status().Code)
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("stage span should be a child of the upload span")
	}
}

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), config.OTEL{ServiceName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestHTTPMiddlewarePassesThrough(t *testing.T) {
	h := HTTPMiddleware("test")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	for _, path := range []string{"/health", "/api/v1/distributions"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		if w.Code != http.StatusTeapot {
			t.Errorf("%s: status = %d", path, w.Code)
		}
	}
}
