// Package otel reserves the observer surface for an OpenTelemetry backend.
// Today it only ships a no-op implementation; a real one would emit a span
// event per lifecycle hook without touching the core packages.
package otel
