package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	prometheus2 "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/prometheus"
	api "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

const (
	defaultEndpoint = "/metrics"
	meterName       = "github.com/netbirdio/updateengine"
)

// Metrics owns the meter the daemon records into and the HTTP server that
// exposes it in the Prometheus format.
type Metrics struct {
	Meter    api.Meter
	provider *metric.MeterProvider
	Endpoint string

	*http.Server
}

// NewServer creates the meter and a server for it on port. The server is not
// started. Metrics go to a dedicated registry rather than the global one.
func NewServer(port int, endpoint string) (*Metrics, error) {
	registry := prometheus2.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))

	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	router := http.NewServeMux()
	router.Handle(endpoint, promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	return &Metrics{
		Meter:    provider.Meter(meterName),
		provider: provider,
		Endpoint: endpoint,
		Server:   server,
	}, nil
}

// Start serves metrics in the background until Shutdown.
func (m *Metrics) Start() {
	go func() {
		log.Infof("serving metrics on %s%s", m.Addr, m.Endpoint)
		if err := m.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
}

// Shutdown stops the metrics server
func (m *Metrics) Shutdown(ctx context.Context) error {
	if err := m.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}

	return nil
}
