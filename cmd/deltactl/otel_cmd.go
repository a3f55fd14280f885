package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otelStdoutFlag installs a stdout TracerProvider/MeterProvider as the
// global OTel providers when set, so the resolver's package-level tracer
// (internal/resolver's resolverTracer) actually exports the spans it
// creates around conflict resolution instead of recording into a no-op.
var otelStdoutFlag bool

// otelShutdown is populated by setupOtel when --otel-stdout is set, and
// flushed from the root command's PersistentPostRun.
var otelShutdown func(context.Context) error

// setupOtel wires stdout exporters into the global trace/metric providers.
// It is a debug aid for watching the resolver's spans and counters print to
// stderr during a single invocation of the CLI; it is not meant for
// production telemetry pipelines.
func setupOtel() error {
	if !otelStdoutFlag {
		return nil
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("building stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return fmt.Errorf("building stdout metric exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(metricExporter)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	otelShutdown = func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}
	return nil
}
