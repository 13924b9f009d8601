//go:build !no_otel

// Package otel provides the tracers of the relying party packages.
// Build with the no_otel tag to remove the OpenTelemetry dependency.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationPrefix = "github.com/zitadel/oidc-rp/"

// Tracer returns the tracer of a package, e.g. "pkg/client".
func Tracer(pkg string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + pkg)
}
