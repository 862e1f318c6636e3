package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("taskmarket-api")

type nearbyRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	fetchDuration  time.Duration
	filterDuration time.Duration
	encodeDuration time.Duration
	radiusKm       float64
	tasksScanned   int
	tasksReturned  int
	errorStage     string
}

func newNearbyRequestMetrics(ctx context.Context, logger *log.Logger) (*nearbyRequestMetrics, context.Context) {
	spanCtx, span := tracer.Start(ctx, "tasks.nearby")
	return &nearbyRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *nearbyRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *nearbyRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *nearbyRequestMetrics) ObserveFilter(d time.Duration) {
	if d > 0 {
		m.filterDuration = d
	}
}

func (m *nearbyRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *nearbyRequestMetrics) SetRadius(km float64) {
	m.radiusKm = km
}

func (m *nearbyRequestMetrics) SetTasksScanned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksScanned = count
}

func (m *nearbyRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *nearbyRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *nearbyRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.Int("http.status_code", status),
			attribute.Float64("nearby.radius_km", m.radiusKm),
			attribute.Int("nearby.tasks_scanned", m.tasksScanned),
			attribute.Int("nearby.tasks_returned", m.tasksReturned),
		)
		if err != nil {
			m.span.SetStatus(codes.Error, m.errorStage)
			m.span.RecordError(err)
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":          "/api/tasks/nearby",
		"status":         status,
		"total_ms":       durationToMillis(time.Since(m.start)),
		"radius_km":      m.radiusKm,
		"tasks_scanned":  m.tasksScanned,
		"tasks_returned": m.tasksReturned,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.filterDuration > 0 {
		fields["filter_ms"] = durationToMillis(m.filterDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("tasks.nearby.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
