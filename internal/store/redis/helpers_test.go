package redis

import (
	"time"

	"licensehub/internal/license"
)

func storetestLicense(key string) license.License {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	return license.License{
		Key:              key,
		Active:           true,
		ExpirationDate:   now.Add(30 * 24 * time.Hour),
		SubscriptionType: license.SubscriptionMonth,
		KeyType:          license.KeyTypeRestricted,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
