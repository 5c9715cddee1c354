// Package app wires the license service together and runs it.
//
// NewApplication builds every component from a loaded configuration:
//
//  1. Logging and OpenTelemetry providers
//  2. The license store selected by store.driver
//  3. The entitlement engine and its telemetry
//  4. The event pipeline (log, Kafka and websocket sinks behind a queue)
//  5. Services, middleware and the chi router
//
// Run serves until its context is cancelled. The HTTP server drains first,
// then queued events are flushed and the store and telemetry are closed.
// The package never calls os.Exit; main decides how to exit.
package app
