// Package license implements the license entitlement engine: the license
// record, its lifecycle operations and the activation algorithm that decides
// whether a key and device pair may use the product.
//
// # Components
//
//	- License: the record, with its subscription and key type enumerations
//	- Clock: the source of "now" for every expiration comparison
//	- Repository: the storage contract, implemented in internal/store
//	- Engine: create, toggle, delete, reset and activate/check
//	- Telemetry: spans and metrics around engine calls
//
// # Activation Flow
//
// ActivateOrCheck evaluates, in order, and stops at the first failure:
//
//	1. The key resolves to a record       (else KeyNotFound)
//	2. The record is active               (else LicenseDeactivated)
//	3. now is before the expiration date  (else LicenseExpired)
//	4. The device binding rule holds      (else DeviceMismatch)
//
// Inactive and expired keys therefore never reveal their binding state.
//
// # Device Binding
//
// Restricted single-device keys bind the first device that activates them and
// reject every other device until ResetKey clears the binding. Multi-device
// keys accept any device and remember the first one. Unrestricted keys accept
// any device and record the most recent caller.
//
// # Concurrency
//
// Every mutating operation reads the record, decides, and writes back through
// Repository.CompareAndUpdate conditioned on the version it read. A lost race
// is retried a bounded number of times with a short backoff; when the budget
// runs out the operation fails with ErrConflict. Two devices racing for the
// same fresh key cannot both win: the loser re-reads the bound record and is
// denied with DeviceMismatch.
package license
