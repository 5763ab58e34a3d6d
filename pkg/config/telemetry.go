/*
	Copyright 2026 OpenVelo
*/

package config

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/openvelo/ride-engine/version"
)

// Telemetry bundles the configured metric pipeline for shutdown.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
}

// SetupTelemetry wires the global meter provider. With a telemetry
// endpoint configured metrics go out via OTLP/gRPC, otherwise to
// stdout.
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("ride-engine"),
			semconv.ServiceVersion(version.Version),
		))
	if err != nil {
		return nil, err
	}

	var reader sdkmetric.Reader
	if TelemetryEndpoint != "" {
		exp, expErr := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
		if expErr != nil {
			return nil, expErr
		}
		reader = sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(15*time.Second))
	} else {
		exp, expErr := stdoutmetric.New(
			stdoutmetric.WithWriter(os.Stderr))
		if expErr != nil {
			return nil, expErr
		}
		reader = sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(time.Minute))
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	return &Telemetry{provider: provider}, nil
}

// Shutdown flushes pending metrics.
func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	//nolint:errcheck // nothing left to do on failure
	t.provider.Shutdown(ctx)
}
