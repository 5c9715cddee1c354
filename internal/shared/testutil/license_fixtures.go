package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensehub/internal/license"
)

// Epoch is the fixed instant license tests start from.
var Epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// LicenseFixtures seeds an engine with licenses for tests.
type LicenseFixtures struct {
	t      *testing.T
	Engine *license.Engine
	Clock  *license.FixedClock
}

// NewLicenseFixtures wraps engine and clock. The clock should start at Epoch.
func NewLicenseFixtures(t *testing.T, engine *license.Engine, clock *license.FixedClock) *LicenseFixtures {
	return &LicenseFixtures{t: t, Engine: engine, Clock: clock}
}

// Restricted creates a restricted single-device one week key.
func (f *LicenseFixtures) Restricted(key string) license.License {
	return f.Create(license.CreateParams{
		Key:              key,
		KeyType:          license.KeyTypeRestricted,
		SubscriptionType: license.SubscriptionWeek,
	})
}

// MultiDevice creates a restricted multi-device one month key.
func (f *LicenseFixtures) MultiDevice(key string) license.License {
	return f.Create(license.CreateParams{
		Key:              key,
		KeyType:          license.KeyTypeRestricted,
		SubscriptionType: license.SubscriptionMonth,
		MultiDevice:      true,
	})
}

// Unrestricted creates an unrestricted one year key.
func (f *LicenseFixtures) Unrestricted(key string) license.License {
	return f.Create(license.CreateParams{
		Key:              key,
		KeyType:          license.KeyTypeUnrestricted,
		SubscriptionType: license.SubscriptionYear,
	})
}

// Create issues a license and fails the test on error.
func (f *LicenseFixtures) Create(p license.CreateParams) license.License {
	f.t.Helper()
	l, err := f.Engine.CreateLicense(context.Background(), p)
	require.NoError(f.t, err)
	return l
}

// Activate runs ActivateOrCheck and fails the test on error.
func (f *LicenseFixtures) Activate(key, device string) license.Result {
	f.t.Helper()
	res, err := f.Engine.ActivateOrCheck(context.Background(), key, device)
	require.NoError(f.t, err)
	return res
}
