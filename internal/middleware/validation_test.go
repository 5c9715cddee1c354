package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "licensehub/internal/errors"
)

type createRequest struct {
	Key              string `json:"key" validate:"required,max=64"`
	KeyType          string `json:"key_type" validate:"required,keytype"`
	SubscriptionType string `json:"subscription_type" validate:"required,subscription"`
	Days             int    `json:"days" validate:"gte=0,lte=3650"`
}

func decode(t *testing.T, body string) (createRequest, error) {
	t.Helper()
	var dst createRequest
	req := httptest.NewRequest(http.MethodPost, "/api/add_license", strings.NewReader(body))
	err := NewValidator().DecodeJSON(httptest.NewRecorder(), req, &dst)
	return dst, err
}

func TestDecodeJSONValid(t *testing.T) {
	got, err := decode(t, `{"key":"K1","key_type":"premium","subscription_type":"1 Month"}`)
	require.NoError(t, err)
	assert.Equal(t, "K1", got.Key)
	assert.Equal(t, "premium", got.KeyType)
}

func TestDecodeJSONValidationErrors(t *testing.T) {
	_, err := decode(t, `{"key":"","key_type":"gold","subscription_type":"Decade","days":-1}`)
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	fields, ok := apiErr.Details.([]apierrors.ValidationError)
	require.True(t, ok)
	byField := map[string]string{}
	for _, f := range fields {
		byField[f.Field] = f.Message
	}
	assert.Equal(t, "key is required", byField["key"])
	assert.Equal(t, "key_type must be restricted or unrestricted", byField["key_type"])
	assert.Contains(t, byField, "subscription_type")
	assert.Contains(t, byField["days"], "greater than or equal")
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := decode(t, `{"key":`)
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_REQUEST", apiErr.ErrorCode)

	_, err = decode(t, ``)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Request body is required", apiErr.Message)
}

func TestDecodeJSONTooLarge(t *testing.T) {
	big := `{"key":"` + strings.Repeat("a", defaultMaxBodySize) + `"}`
	_, err := decode(t, big)
	var apiErr *apierrors.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.StatusCode)
}
