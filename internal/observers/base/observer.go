// Package base provides common functionality for all Tapio observers
// This reduces code duplication and ensures consistent observability
package base

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HealthState is the coarse health of an observer
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// HealthStatus describes observer health
type HealthStatus struct {
	State     HealthState `json:"state"`
	Message   string      `json:"message"`
	LastError string      `json:"last_error,omitempty"`
}

// Statistics is a snapshot of observer counters
type Statistics struct {
	EventsProcessed int64             `json:"events_processed"`
	EventsDropped   int64             `json:"events_dropped"`
	ErrorCount      int64             `json:"error_count"`
	LastEventTime   time.Time         `json:"last_event_time"`
	Uptime          time.Duration     `json:"uptime"`
	CustomMetrics   map[string]string `json:"custom_metrics,omitempty"`
}

// BaseObserver provides common statistics and health tracking for all observers
// Embed this in your observer to get Statistics() and Health() methods automatically
type BaseObserver struct {
	name      string
	startTime time.Time
	logger    *zap.Logger

	// Statistics tracking (atomic for thread safety)
	eventsProcessed atomic.Int64
	eventsDropped   atomic.Int64
	errorCount      atomic.Int64

	lastEventTime atomic.Value // stores time.Time
	lastError     atomic.Value // stores string

	isHealthy          atomic.Bool
	errorRateThreshold float64

	tracer trace.Tracer
	meter  metric.Meter

	// Standard OTEL metrics, nil when creation failed
	eventsProcessedCounter metric.Int64Counter
	eventsDroppedCounter   metric.Int64Counter
	errorCounter           metric.Int64Counter
	processingDuration     metric.Float64Histogram
}

// BaseObserverConfig holds configuration for BaseObserver
type BaseObserverConfig struct {
	Name               string
	ErrorRateThreshold float64 // Default 0.1 (10%)

	// Meter defaults to the global meter provider
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewBaseObserverWithConfig creates a new base observer with full configuration
func NewBaseObserverWithConfig(config BaseObserverConfig) *BaseObserver {
	if config.ErrorRateThreshold == 0 {
		config.ErrorRateThreshold = 0.1 // Default 10%
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Meter == nil {
		config.Meter = otel.Meter(config.Name)
	}

	bc := &BaseObserver{
		name:               config.Name,
		startTime:          time.Now(),
		logger:             config.Logger,
		errorRateThreshold: config.ErrorRateThreshold,
		tracer:             otel.Tracer(config.Name),
		meter:              config.Meter,
	}
	bc.isHealthy.Store(true)
	bc.lastEventTime.Store(time.Time{})

	bc.initializeMetrics()
	return bc
}

// initializeMetrics registers standard OTEL metrics for all observers
func (bc *BaseObserver) initializeMetrics() {
	var err error

	bc.eventsProcessedCounter, err = bc.meter.Int64Counter(
		fmt.Sprintf("%s_events_processed_total", bc.name),
		metric.WithDescription("Total events processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bc.metricError("events processed counter", err)
		bc.eventsProcessedCounter = nil
	}

	bc.eventsDroppedCounter, err = bc.meter.Int64Counter(
		fmt.Sprintf("%s_events_dropped_total", bc.name),
		metric.WithDescription("Total events dropped"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bc.metricError("events dropped counter", err)
		bc.eventsDroppedCounter = nil
	}

	bc.errorCounter, err = bc.meter.Int64Counter(
		fmt.Sprintf("%s_errors_total", bc.name),
		metric.WithDescription("Total errors by kind"),
		metric.WithUnit("1"),
	)
	if err != nil {
		bc.metricError("error counter", err)
		bc.errorCounter = nil
	}

	bc.processingDuration, err = bc.meter.Float64Histogram(
		fmt.Sprintf("%s_processing_duration_ms", bc.name),
		metric.WithDescription("Per-event processing duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		bc.metricError("processing duration histogram", err)
		bc.processingDuration = nil
	}
}

func (bc *BaseObserver) metricError(what string, err error) {
	// metrics are optional
	bc.logger.Debug("Failed to create "+what,
		zap.String("observer", bc.name),
		zap.Error(err))
}

// RecordEvent records a successfully processed event
func (bc *BaseObserver) RecordEvent(ctx context.Context, attrs ...attribute.KeyValue) {
	bc.eventsProcessed.Add(1)
	bc.lastEventTime.Store(time.Now())
	if bc.eventsProcessedCounter != nil {
		bc.eventsProcessedCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordDrop records a dropped event
func (bc *BaseObserver) RecordDrop(ctx context.Context, reason string) {
	bc.eventsDropped.Add(1)
	if bc.eventsDroppedCounter != nil {
		bc.eventsDroppedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("reason", reason),
		))
	}
}

// RecordError records an error of the given kind
func (bc *BaseObserver) RecordError(ctx context.Context, kind string, err error) {
	if err == nil {
		return
	}
	bc.errorCount.Add(1)
	bc.lastError.Store(err.Error())
	if bc.errorCounter != nil {
		bc.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", kind),
		))
	}
}

// RecordProcessingDuration records how long one event took
func (bc *BaseObserver) RecordProcessingDuration(ctx context.Context, duration time.Duration) {
	if bc.processingDuration != nil {
		bc.processingDuration.Record(ctx, float64(duration.Microseconds())/1000)
	}
}

// StartSpan starts a tracing span named after the observer
func (bc *BaseObserver) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return bc.tracer.Start(ctx, fmt.Sprintf("%s.%s", bc.name, spanName), opts...)
}

// Meter returns the meter used for observer-specific instruments
func (bc *BaseObserver) Meter() metric.Meter {
	return bc.meter
}

// SetHealthy sets the observer health status
func (bc *BaseObserver) SetHealthy(healthy bool) {
	bc.isHealthy.Store(healthy)
}

// IsHealthy returns true if the observer is healthy
func (bc *BaseObserver) IsHealthy() bool {
	return bc.isHealthy.Load()
}

// Statistics returns observer statistics
func (bc *BaseObserver) Statistics() *Statistics {
	lastEventTime, _ := bc.lastEventTime.Load().(time.Time)

	return &Statistics{
		EventsProcessed: bc.eventsProcessed.Load(),
		EventsDropped:   bc.eventsDropped.Load(),
		ErrorCount:      bc.errorCount.Load(),
		LastEventTime:   lastEventTime,
		Uptime:          time.Since(bc.startTime),
		CustomMetrics:   make(map[string]string),
	}
}

// Health returns health status
func (bc *BaseObserver) Health() *HealthStatus {
	lastErr, _ := bc.lastError.Load().(string)

	if !bc.isHealthy.Load() {
		return &HealthStatus{
			State:     HealthUnhealthy,
			Message:   fmt.Sprintf("%s observer is unhealthy", bc.name),
			LastError: lastErr,
		}
	}

	errorRate := float64(0)
	if processed := bc.eventsProcessed.Load(); processed > 0 {
		errorRate = float64(bc.errorCount.Load()) / float64(processed)
	}

	if errorRate > bc.errorRateThreshold {
		return &HealthStatus{
			State: HealthDegraded,
			Message: fmt.Sprintf("High error rate: %.1f%% (threshold: %.1f%%)",
				errorRate*100, bc.errorRateThreshold*100),
			LastError: lastErr,
		}
	}

	return &HealthStatus{
		State:   HealthHealthy,
		Message: fmt.Sprintf("%s observer operating normally", bc.name),
	}
}

// GetName returns the observer name
func (bc *BaseObserver) GetName() string {
	return bc.name
}
