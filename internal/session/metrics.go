package session

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// pipelineMetrics holds the playback pipeline counters. Metric setup
// failures degrade to no-ops so the pipeline itself is never blocked on
// telemetry.
type pipelineMetrics struct {
	enqueued      metric.Int64Counter
	playedCount   metric.Int64Counter
	synthFailures metric.Int64Counter
	droppedCount  metric.Int64Counter
}

func newPipelineMetrics(log *slog.Logger) *pipelineMetrics {
	meter := otel.Meter("github.com/yomilabs/yomi-core/session")
	m := &pipelineMetrics{}
	var err error
	if m.enqueued, err = meter.Int64Counter("yomi.pipeline.enqueued", metric.WithDescription("Items accepted into tenant queues")); err != nil {
		log.Warn("failed to initialize pipeline metrics", slog.String("error", err.Error()))
		return m
	}
	if m.playedCount, err = meter.Int64Counter("yomi.pipeline.played", metric.WithDescription("Items handed to the audio transport")); err != nil {
		log.Warn("failed to initialize pipeline metrics", slog.String("error", err.Error()))
		return m
	}
	if m.synthFailures, err = meter.Int64Counter("yomi.pipeline.synth_failures", metric.WithDescription("Items discarded after synthesis errors")); err != nil {
		log.Warn("failed to initialize pipeline metrics", slog.String("error", err.Error()))
		return m
	}
	if m.droppedCount, err = meter.Int64Counter("yomi.pipeline.dropped", metric.WithDescription("Items discarded before playback")); err != nil {
		log.Warn("failed to initialize pipeline metrics", slog.String("error", err.Error()))
	}
	return m
}

func (m *pipelineMetrics) add(ctx context.Context, c metric.Int64Counter, tenantID string) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("tenant", tenantID)))
}

func (m *pipelineMetrics) enqueuedItem(ctx context.Context, tenantID string) {
	m.add(ctx, m.enqueued, tenantID)
}

func (m *pipelineMetrics) played(ctx context.Context, tenantID string) {
	m.add(ctx, m.playedCount, tenantID)
}

func (m *pipelineMetrics) synthFailed(ctx context.Context, tenantID string) {
	m.add(ctx, m.synthFailures, tenantID)
}

func (m *pipelineMetrics) dropped(ctx context.Context, tenantID string) {
	m.add(ctx, m.droppedCount, tenantID)
}
