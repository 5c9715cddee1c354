package license

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionType records how a license's duration was chosen at creation.
// It is kept for display and audit only; expiration is never recomputed from it.
type SubscriptionType string

const (
	SubscriptionWeek      SubscriptionType = "1 Week"
	SubscriptionMonth     SubscriptionType = "1 Month"
	SubscriptionQuarter   SubscriptionType = "3 Months"
	SubscriptionHalfYear  SubscriptionType = "6 Months"
	SubscriptionYear      SubscriptionType = "1 Year"
	SubscriptionFreeTrial SubscriptionType = "Free Trial"
	SubscriptionHours     SubscriptionType = "Hours"
	SubscriptionDays      SubscriptionType = "Days"
)

// SubscriptionTypes lists every accepted subscription type in display order.
var SubscriptionTypes = []SubscriptionType{
	SubscriptionWeek,
	SubscriptionMonth,
	SubscriptionQuarter,
	SubscriptionHalfYear,
	SubscriptionYear,
	SubscriptionFreeTrial,
	SubscriptionHours,
	SubscriptionDays,
}

// ParseSubscriptionType validates s against the known subscription types.
func ParseSubscriptionType(s string) (SubscriptionType, error) {
	for _, t := range SubscriptionTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSubscription, s)
}

// Custom reports whether the span comes from caller supplied days and hours.
func (t SubscriptionType) Custom() bool {
	return t == SubscriptionHours || t == SubscriptionDays
}

// KeyType controls whether device binding is enforced.
type KeyType string

const (
	KeyTypeRestricted   KeyType = "restricted"
	KeyTypeUnrestricted KeyType = "unrestricted"
)

// ParseKeyType accepts the canonical names plus the legacy dashboard labels
// "standard" (restricted) and "premium" (unrestricted).
func ParseKeyType(s string) (KeyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restricted", "standard":
		return KeyTypeRestricted, nil
	case "unrestricted", "premium":
		return KeyTypeUnrestricted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKeyType, s)
	}
}

// License is a single redeemable entitlement.
type License struct {
	ID               int64            `json:"id"`
	Key              string           `json:"key"`
	Active           bool             `json:"active"`
	Activated        bool             `json:"activated"`
	ExpirationDate   time.Time        `json:"expiration_date"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	KeyType          KeyType          `json:"key_type"`
	MultiDevice      bool             `json:"multi_device"`
	DeviceID         string           `json:"device_id,omitempty"`
	SupportName      string           `json:"support_name,omitempty"`
	Version          int64            `json:"version"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Exclusive reports whether the key may be bound to a single device only.
func (l License) Exclusive() bool {
	return l.KeyType == KeyTypeRestricted && !l.MultiDevice
}

// Bound reports whether a device is currently recorded on the license.
func (l License) Bound() bool {
	return l.DeviceID != ""
}

// Expired reports whether the license is void at now.
func (l License) Expired(now time.Time) bool {
	return !now.Before(l.ExpirationDate)
}

// Remaining returns the time left before expiration, never negative.
func (l License) Remaining(now time.Time) time.Duration {
	if l.Expired(now) {
		return 0
	}
	return l.ExpirationDate.Sub(now)
}

// Reason explains why an activation check was denied.
type Reason string

const (
	ReasonKeyNotFound        Reason = "KeyNotFound"
	ReasonLicenseDeactivated Reason = "LicenseDeactivated"
	ReasonLicenseExpired     Reason = "LicenseExpired"
	ReasonDeviceMismatch     Reason = "DeviceMismatch"
)

// Message returns the end-user text shown for a denial.
func (r Reason) Message() string {
	switch r {
	case ReasonKeyNotFound:
		return "Key not found."
	case ReasonLicenseDeactivated, ReasonLicenseExpired:
		return "The key is either inactive or expired."
	case ReasonDeviceMismatch:
		return "This key is already used on another device."
	default:
		return "The key could not be validated."
	}
}

// Result is the outcome of ActivateOrCheck. A denied activation is a normal
// result, not an error.
type Result struct {
	Valid  bool
	Reason Reason
	// License is the record as committed after the check. It is the zero
	// value when the key does not exist.
	License License
	// Bound is true when this call performed the first binding of the device.
	Bound bool
}

// ExpirationDate is only meaningful for valid results.
func (r Result) ExpirationDate() time.Time {
	return r.License.ExpirationDate
}
