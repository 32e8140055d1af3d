// Package tracing configures OpenTelemetry for workflow runs.
//
// The engine creates its spans through the otel API ("workflow <Name>" for a
// run, "state <Name>" per state execution). This package supplies the SDK
// side: a tracer provider exporting finished spans as JSON lines through the
// stdout exporter, to stdout or a file.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used for engine spans.
const InstrumentationName = "github.com/roach88/stateengine/internal/engine"

// Provider owns a tracer provider and the writer its exporter writes to.
type Provider struct {
	tp     *sdktrace.TracerProvider
	closer io.Closer
}

// New creates a provider exporting spans to w.
func New(serviceName, serviceVersion string, w io.Writer) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	return NewWithExporter(serviceName, serviceVersion, exporter)
}

// NewWithExporter creates a provider for any SDK span exporter.
func NewWithExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*Provider, error) {
	if exporter == nil {
		return nil, errors.New("nil span exporter")
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Provider{tp: tp}, nil
}

// Open creates a provider writing to outputFile, or to os.Stdout when
// outputFile is empty. Shutdown closes the file.
func Open(serviceName, serviceVersion, outputFile string) (*Provider, error) {
	if outputFile == "" {
		return New(serviceName, serviceVersion, os.Stdout)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}
	p, err := New(serviceName, serviceVersion, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	return p, nil
}

// Tracer returns the tracer for engine spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(InstrumentationName)
}

// TracerProvider returns the underlying SDK provider.
func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and releases the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.tp.Shutdown(ctx)
	if p.closer != nil {
		err = errors.Join(err, p.closer.Close())
	}
	return err
}
