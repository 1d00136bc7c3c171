// Package telemetry wires the pipeline into OpenTelemetry: metric recording
// for fetch/store operations and conversion chains, plus the OTLP trace
// provider bootstrap used by binaries embedding the library.
//
// Instruments are created lazily against the globally registered meter
// provider, so embedding applications control export entirely through the
// OTel SDK. Recording is a no-op until a provider is installed.
package telemetry
