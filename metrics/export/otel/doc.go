// Package otel exposes session metrics as OpenTelemetry observable
// instruments. Callers own the MeterProvider and pass a Meter.
package otel
