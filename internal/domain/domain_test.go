package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionSetAllows(t *testing.T) {
	tests := []struct {
		name     string
		raw      []string
		required string
		want     bool
	}{
		{"exact match", []string{"wallet:credit"}, "wallet:credit", true},
		{"no match", []string{"wallet:credit"}, "wallet:debit", false},
		{"resource wildcard", []string{"wallet:*"}, "wallet:rollback", true},
		{"resource wildcard other resource", []string{"wallet:*"}, "game:launch", false},
		{"action wildcard", []string{"*:read"}, "report:read", true},
		{"full wildcard star", []string{"*"}, "anything:at-all", true},
		{"full wildcard pair", []string{"*:*"}, "game:callback", true},
		{"empty required", []string{"*"}, "", false},
		{"empty set", nil, "wallet:credit", false},
		{"malformed entry dropped", []string{"wallet"}, "wallet:credit", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPermissionSet(tt.raw)
			assert.Equal(t, tt.want, s.Allows(tt.required))
		})
	}
}

func TestPermissionSetJSONRoundTrip(t *testing.T) {
	s := NewPermissionSet([]string{"wallet:credit", "game:*", "*"})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["*","game:*","wallet:credit"]`, string(data))

	var back PermissionSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Allows("report:create"))
	assert.False(t, back.IsEmpty())
}

func TestPermissionSetIsEmpty(t *testing.T) {
	assert.True(t, NewPermissionSet(nil).IsEmpty())
	assert.True(t, NewPermissionSet([]string{"", "  ", "noaction"}).IsEmpty())
	assert.False(t, NewPermissionSet([]string{"*"}).IsEmpty())
}

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("EUR"))
	assert.NoError(t, ValidateCurrency("USD"))

	for _, bad := range []string{"eur", "EURO", "EU", "", "E1R"} {
		err := ValidateCurrency(bad)
		require.Error(t, err, bad)
		assert.Equal(t, "INVALID_REQUEST", err.(*AppError).Code)
	}
}

func TestValidatePositiveAmount(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(decimal.RequireFromString("10.50")))
	assert.NoError(t, ValidatePositiveAmount(decimal.RequireFromString("0.01")))

	assert.Error(t, ValidatePositiveAmount(decimal.Zero))
	assert.Error(t, ValidatePositiveAmount(decimal.RequireFromString("-5")))
	assert.Error(t, ValidatePositiveAmount(decimal.RequireFromString("1.999")), "three decimal places")
}

func TestValidateReferenceID(t *testing.T) {
	assert.NoError(t, ValidateReferenceID("bet-2026:round_18.1"))

	assert.Error(t, ValidateReferenceID(""))
	assert.Error(t, ValidateReferenceID("has space"))

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateReferenceID(string(long)))
}

func TestAppErrorStatus(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{ErrValidation("bad"), 400},
		{ErrUnauthorized("nope"), 401},
		{ErrForbidden("no scope"), 403},
		{ErrNotFound("player", "p1"), 404},
		{ErrConflict("exists"), 409},
		{ErrInsufficientFunds(), 400},
		{ErrRateLimited("slow down"), 429},
		{ErrUpstream("provider down", nil), 503},
		{ErrInternal("boom", nil), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.err.Status, tt.err.Code)
	}
}
