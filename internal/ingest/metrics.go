package ingest

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/roman-kulish/eis-ingest/internal/ingest"

type metrics struct {
	started  metric.Int64Counter
	ended    metric.Int64Counter
	evicted  metric.Int64Counter
	active   metric.Int64UpDownCounter
	accepted metric.Int64Counter
	rejected metric.Int64Counter
	faults   metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m    metrics
		errs [7]error
	)

	m.started, errs[0] = meter.Int64Counter("eis.sessions.started",
		metric.WithDescription("Number of opened ingestion sessions"))
	m.ended, errs[1] = meter.Int64Counter("eis.sessions.ended",
		metric.WithDescription("Number of finished ingestion sessions"))
	m.evicted, errs[2] = meter.Int64Counter("eis.sessions.evicted",
		metric.WithDescription("Number of sessions closed after being idle"))
	m.active, errs[3] = meter.Int64UpDownCounter("eis.sessions.active",
		metric.WithDescription("Number of currently open sessions"))
	m.accepted, errs[4] = meter.Int64Counter("eis.samples.accepted",
		metric.WithDescription("Number of samples written to the accepted log"))
	m.rejected, errs[5] = meter.Int64Counter("eis.samples.rejected",
		metric.WithDescription("Number of samples written to the rejects log"))
	m.faults, errs[6] = meter.Int64Counter("eis.faults",
		metric.WithDescription("Number of protocol faults returned to clients"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) sessionStarted(ctx context.Context) {
	m.started.Add(ctx, 1)
	m.active.Add(ctx, 1)
}

func (m *metrics) sessionEnded(ctx context.Context, status string) {
	m.ended.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.active.Add(ctx, -1)
}

func (m *metrics) sessionEvicted(ctx context.Context) {
	m.evicted.Add(ctx, 1)
}

func (m *metrics) sampleAccepted(ctx context.Context) {
	m.accepted.Add(ctx, 1)
}

func (m *metrics) sampleRejected(ctx context.Context, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) fault(ctx context.Context, kind FaultKind) {
	m.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
