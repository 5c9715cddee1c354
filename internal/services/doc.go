// Package services is the business layer between the HTTP handlers and the
// license engine.
//
// LicenseService wraps every engine call in a span, records the license
// metrics and publishes a lifecycle event after each committed change.
// Event delivery is best effort: a failing publisher is logged and never
// fails the operation.
//
// AuthService exchanges the admin password for a signed bearer token, and
// HealthService reports liveness and store readiness.
package services
