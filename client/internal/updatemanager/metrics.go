package updatemanager

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
)

// Metrics records evaluation outcomes.
type Metrics struct {
	evaluations metric.Int64Counter
	passes      metric.Int64Histogram
	durationMs  metric.Int64Histogram
	coalesced   metric.Int64Counter
	ctx         context.Context
}

// NewMetrics creates the evaluation instruments on meter.
func NewMetrics(ctx context.Context, meter metric.Meter) (*Metrics, error) {
	evaluations, err := meter.Int64Counter("updateengine.evaluation.requests",
		metric.WithDescription("Resolved decision requests by kind and status"))
	if err != nil {
		return nil, err
	}

	passes, err := meter.Int64Histogram("updateengine.evaluation.passes",
		metric.WithDescription("Evaluation passes needed to resolve a request"))
	if err != nil {
		return nil, err
	}

	durationMs, err := meter.Int64Histogram("updateengine.evaluation.duration.ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time from scheduling a request to its resolution"))
	if err != nil {
		return nil, err
	}

	coalesced, err := meter.Int64Counter("updateengine.evaluation.coalesced",
		metric.WithDescription("Requests that joined an evaluation already in flight"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		evaluations: evaluations,
		passes:      passes,
		durationMs:  durationMs,
		coalesced:   coalesced,
		ctx:         ctx,
	}, nil
}

// CountResolved records one resolved evaluation.
func (m *Metrics) CountResolved(kind evaluation.Kind, status evaluation.EvalStatus, timedOut bool, passes int, duration time.Duration) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("status", status.String()),
		attribute.Bool("timed_out", timedOut),
	)
	m.evaluations.Add(m.ctx, 1, attrs)
	m.passes.Record(m.ctx, int64(passes), metric.WithAttributes(attribute.String("kind", string(kind))))
	m.durationMs.Record(m.ctx, duration.Milliseconds(), metric.WithAttributes(attribute.String("kind", string(kind))))
}

// CountCoalesced records a request that joined an existing evaluation.
func (m *Metrics) CountCoalesced(kind evaluation.Kind) {
	if m == nil {
		return
	}
	m.coalesced.Add(m.ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
