package services

import (
	"time"

	"licensehub/internal/license"
)

// AddLicenseRequest is the body of POST /api/add_license. Days and Hours are
// read only for the "Days" and "Hours" subscription types.
type AddLicenseRequest struct {
	Key              string `json:"key" validate:"required,max=128"`
	Days             int    `json:"days" validate:"gte=0,lte=36500"`
	Hours            int    `json:"hours" validate:"gte=0,lte=876000"`
	SubscriptionType string `json:"subscription_type" validate:"required,subscription"`
	SupportName      string `json:"support_name" validate:"max=128"`
	KeyType          string `json:"key_type" validate:"required,keytype"`
	MultiDevice      bool   `json:"multi_device"`
}

// ResetKeyRequest is the body of POST /api/reset_key.
type ResetKeyRequest struct {
	Key string `json:"key" validate:"required,max=128"`
}

// CheckKeyRequest is the body of POST /api/check_key_details.
type CheckKeyRequest struct {
	Key      string `json:"key" validate:"required,max=128"`
	DeviceID string `json:"device_id" validate:"required,max=256"`
}

// TokenRequest is the body of POST /api/admin/token.
type TokenRequest struct {
	Password string `json:"password" validate:"required,max=256"`
}

// TokenResponse carries a freshly issued admin token.
type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RemainingTime splits the time left before expiration.
type RemainingTime struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// NewRemainingTime truncates d to whole minutes. Negative spans are zero.
func NewRemainingTime(d time.Duration) RemainingTime {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	return RemainingTime{
		Days:    minutes / (24 * 60),
		Hours:   minutes / 60 % 24,
		Minutes: minutes % 60,
	}
}

// CheckKeyResponse is the body of a key check. Denials only carry Reason and
// Message.
type CheckKeyResponse struct {
	Valid            bool           `json:"valid"`
	Reason           string         `json:"reason,omitempty"`
	Message          string         `json:"message,omitempty"`
	ExpirationDate   string         `json:"expiration_date,omitempty"`
	SubscriptionType string         `json:"subscription_type,omitempty"`
	SupportName      *string        `json:"support_name,omitempty"`
	RemainingTime    *RemainingTime `json:"remaining_time,omitempty"`
	MultiDevice      *bool          `json:"multi_device,omitempty"`
}

// NewCheckKeyResponse shapes an engine result. now feeds the remaining time.
func NewCheckKeyResponse(res license.Result, now time.Time) CheckKeyResponse {
	if !res.Valid {
		return CheckKeyResponse{
			Reason:  string(res.Reason),
			Message: res.Reason.Message(),
		}
	}
	l := res.License
	remaining := NewRemainingTime(l.Remaining(now))
	support := l.SupportName
	multi := l.MultiDevice
	return CheckKeyResponse{
		Valid:            true,
		ExpirationDate:   l.ExpirationDate.UTC().Format(time.DateOnly),
		SubscriptionType: string(l.SubscriptionType),
		SupportName:      &support,
		RemainingTime:    &remaining,
		MultiDevice:      &multi,
	}
}

// MessageResponse is a bare confirmation body.
type MessageResponse struct {
	Message string `json:"message"`
}
