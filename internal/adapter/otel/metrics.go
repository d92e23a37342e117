package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "taskdealer"

// OutcomeOK labels a successful upload.
const OutcomeOK = "ok"

// Metrics holds all TaskDealer metric instruments.
type Metrics struct {
	Uploads          metric.Int64Counter
	RowsAccepted     metric.Int64Counter
	RowsDropped      metric.Int64Counter
	TasksDistributed metric.Int64Counter
	UploadDuration   metric.Float64Histogram
}

// NewMetrics creates all metric instruments on mp, or on the global
// provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Uploads, err = meter.Int64Counter("taskdealer.uploads",
		metric.WithDescription("Uploads processed, by outcome"))
	if err != nil {
		return nil, err
	}

	m.RowsAccepted, err = meter.Int64Counter("taskdealer.rows.accepted",
		metric.WithDescription("Rows that passed validation"))
	if err != nil {
		return nil, err
	}

	m.RowsDropped, err = meter.Int64Counter("taskdealer.rows.dropped",
		metric.WithDescription("Rows dropped as malformed"))
	if err != nil {
		return nil, err
	}

	m.TasksDistributed, err = meter.Int64Counter("taskdealer.tasks.distributed",
		metric.WithDescription("Tasks persisted in a replaced snapshot"))
	if err != nil {
		return nil, err
	}

	m.UploadDuration, err = meter.Float64Histogram("taskdealer.upload.duration_seconds",
		metric.WithDescription("Upload processing time in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordUpload records one finished upload. Row and task counters are
// only incremented for successful uploads.
func (m *Metrics) RecordUpload(ctx context.Context, outcome string, accepted, dropped, tasks int, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.Uploads.Add(ctx, 1, attrs)
	m.UploadDuration.Record(ctx, elapsed.Seconds(), attrs)
	if outcome != OutcomeOK {
		return
	}
	m.RowsAccepted.Add(ctx, int64(accepted))
	m.RowsDropped.Add(ctx, int64(dropped))
	m.TasksDistributed.Add(ctx, int64(tasks))
}
