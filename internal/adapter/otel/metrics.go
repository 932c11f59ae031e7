package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "lifelog"

// Metrics holds all lifelog metric instruments.
type Metrics struct {
	SessionsStarted  metric.Int64Counter
	SessionsFinished metric.Int64Counter
	SessionDuration  metric.Float64Histogram
	PeakAmplitude    metric.Float64Histogram
	TasksEnqueued    metric.Int64Counter
	TasksCompleted   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	HandlerDuration  metric.Float64Histogram
	EventsImported   metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("lifelog.sessions.started",
		metric.WithDescription("Number of capture sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsFinished, err = meter.Int64Counter("lifelog.sessions.finished",
		metric.WithDescription("Number of capture sessions finalized"))
	if err != nil {
		return nil, err
	}

	m.SessionDuration, err = meter.Float64Histogram("lifelog.session.duration_seconds",
		metric.WithDescription("Capture session length in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.PeakAmplitude, err = meter.Float64Histogram("lifelog.capture.peak_amplitude",
		metric.WithDescription("Peak normalized input amplitude per reporting interval"))
	if err != nil {
		return nil, err
	}

	m.TasksEnqueued, err = meter.Int64Counter("lifelog.tasks.enqueued",
		metric.WithDescription("Number of tasks added to the queue"))
	if err != nil {
		return nil, err
	}

	m.TasksCompleted, err = meter.Int64Counter("lifelog.tasks.completed",
		metric.WithDescription("Number of tasks completed"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("lifelog.tasks.failed",
		metric.WithDescription("Number of tasks failed"))
	if err != nil {
		return nil, err
	}

	m.HandlerDuration, err = meter.Float64Histogram("lifelog.task.duration_seconds",
		metric.WithDescription("Task handler duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.EventsImported, err = meter.Int64Counter("lifelog.events.imported",
		metric.WithDescription("Number of activity events imported"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
