// Package shared holds code used across licensehub packages that belongs to no
// single layer.
//
// The testutil subpackage provides:
//
//	- BufferedSlogHandler and NewTestLogger for asserting on structured logs
//	- LicenseFixtures for seeding an engine with licenses in tests
//
// Nothing here is imported by production code.
package shared
