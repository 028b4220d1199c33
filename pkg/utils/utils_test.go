package utils

import (
	"testing"
	"time"

	apperrors "github.com/legrandjeremy/maxence-rag/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatISOIsFixedWidth(t *testing.T) {
	a := FormatISO(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	b := FormatISO(time.Date(2024, 1, 2, 3, 4, 5, 120_000_000, time.UTC))

	assert.Equal(t, "2024-01-02T03:04:05.000Z", a)
	assert.Equal(t, "2024-01-02T03:04:05.120Z", b)
	assert.Len(t, b, len(a))
	assert.Less(t, a, b)
}

func TestParseISO(t *testing.T) {
	parsed, err := ParseISO("2024-01-02T03:04:05.120Z")
	require.NoError(t, err)
	assert.Equal(t, 120*time.Millisecond, time.Duration(parsed.Nanosecond()))

	_, err = ParseISO("2024-01-02T03:04:05Z")
	require.NoError(t, err)

	_, err = ParseISO("yesterday")
	assert.Error(t, err)
}

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	UserType string `json:"userType" validate:"oneof=admin user"`
	Order    int    `json:"order,omitempty" validate:"gte=0,lte=999"`
}

func TestValidateStruct(t *testing.T) {
	require.NoError(t, ValidateStruct(sample{Email: "a@b.co", UserType: "admin"}))

	err := ValidateStruct(sample{Email: "nope", UserType: "root"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Contains(t, err.Error(), "email must be a valid email")
	assert.Contains(t, err.Error(), "userType must be one of: admin user")

	err = ValidateStruct(sample{Email: "a@b.co", UserType: "user", Order: 1000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order must be at most 999")
}
