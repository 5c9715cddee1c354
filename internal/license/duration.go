package license

import (
	"fmt"
	"math"
	"time"
)

const day = 24 * time.Hour

// maxSpanHours is the longest custom span a time.Duration can hold.
const maxSpanHours = math.MaxInt64 / int64(time.Hour)

// DefaultFreeTrialSpan is used when the engine is not configured otherwise.
const DefaultFreeTrialSpan = 72 * time.Hour

var fixedSpans = map[SubscriptionType]time.Duration{
	SubscriptionWeek:     7 * day,
	SubscriptionMonth:    30 * day,
	SubscriptionQuarter:  90 * day,
	SubscriptionHalfYear: 180 * day,
	SubscriptionYear:     365 * day,
}

// Span resolves the lifetime of a new license. Fixed subscription types map to
// calendar spans; Hours and Days use days*24h + hours from the caller.
func Span(t SubscriptionType, days, hours int, freeTrial time.Duration) (time.Duration, error) {
	if span, ok := fixedSpans[t]; ok {
		return span, nil
	}

	var span time.Duration
	switch t {
	case SubscriptionFreeTrial:
		span = freeTrial
	case SubscriptionHours, SubscriptionDays:
		d, h := int64(days), int64(hours)
		if d > maxSpanHours/24 || d < -maxSpanHours/24 || h > maxSpanHours || h < -maxSpanHours {
			return 0, fmt.Errorf("%w: %s with days=%d hours=%d", ErrInvalidDuration, t, days, hours)
		}
		total := d*24 + h
		if total > maxSpanHours {
			return 0, fmt.Errorf("%w: %s with days=%d hours=%d", ErrInvalidDuration, t, days, hours)
		}
		span = time.Duration(total) * time.Hour
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSubscription, t)
	}

	if span <= 0 {
		return 0, fmt.Errorf("%w: %s with days=%d hours=%d", ErrInvalidDuration, t, days, hours)
	}
	return span, nil
}
