// Package http exposes the license service over chi.
//
// Admin routes under /api require a bearer token minted by
// POST /api/admin/token. The key check endpoint is public and rate limited
// per client IP; denials are ordinary 200 responses with valid=false.
// Every failure is answered with an RFC 7807 problem document.
package http
