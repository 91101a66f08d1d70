// Package telemetry installs the OpenTelemetry providers used by the agent
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// Config holds OpenTelemetry configuration
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLPEndpoint receives traces and metrics over gRPC, empty disables OTLP
	OTLPEndpoint string

	// PrometheusAddr is where /metrics is served, empty disables the endpoint
	PrometheusAddr string

	Logger *zap.Logger
}

// Provider holds all OpenTelemetry providers
type Provider struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	server         *http.Server
	listener       net.Listener
	logger         *zap.Logger
}

// NewProvider creates the providers and installs them globally
func NewProvider(ctx context.Context, config *Config) (*Provider, error) {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			attribute.String("tapio.component", config.ServiceName),
		),
		resource.WithProcessPID(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{
		config: config,
		logger: config.Logger,
	}

	if err := p.initTracing(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	if err := p.initMetrics(ctx, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

func (p *Provider) initTracing(ctx context.Context, res *resource.Resource) error {
	if p.config.OTLPEndpoint == "" {
		p.logger.Debug("No OTLP endpoint configured, traces will not be exported")
		p.tracerProvider = sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		return nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		// Per-event spans are frequent, keep a tenth of them
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	return nil
}

func (p *Provider) initMetrics(ctx context.Context, res *resource.Resource) error {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if p.config.PrometheusAddr != "" {
		registry := promclient.NewRegistry()
		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exporter))

		if err := p.serveMetrics(registry); err != nil {
			return err
		}
	}

	if p.config.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			_ = p.closeServer(ctx)
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(30*time.Second),
		)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	return nil
}

func (p *Provider) serveMetrics(registry *promclient.Registry) error {
	listener, err := net.Listen("tcp", p.config.PrometheusAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.config.PrometheusAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	p.listener = listener
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	p.logger.Info("Serving Prometheus metrics", zap.String("addr", listener.Addr().String()))
	return nil
}

// MetricsAddr returns the address /metrics is served on, empty when disabled
func (p *Provider) MetricsAddr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// MeterProvider returns the installed meter provider
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

func (p *Provider) closeServer(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

// Shutdown flushes exporters and stops the metrics endpoint
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error

	if err := p.closeServer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}

	return errors.Join(errs...)
}
