// Package xtrace wraps go.opentelemetry.io/otel's tracer API behind a
// thin indirection, the same role xlog plays for the logr backend: a
// caller that never configures a real exporter gets otel's default
// no-op tracer, and a caller that does call otel.SetTracerProvider
// elsewhere in the process gets real spans without this package
// changing.
package xtrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/coldvault/mdcache"

func tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Start begins a span named name and returns the derived context plus a
// finish function the caller defers.
func Start(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := tracer().Start(ctx, name)
	return ctx, func() { span.End() }
}
