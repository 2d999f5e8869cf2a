package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestValidator(t *testing.T) {
	v := NewValidator().
		Field("filename", "", Required).
		Field("filename", "invoice-with-a-very-long-name.pdf", MaxLength(10)).
		Field("project_id", "not-a-uuid", UUID).
		Field("data", make([]byte, 11), MaxBytes(10))

	require.True(t, v.HasErrors())
	assert.Len(t, v.Errors(), 4)

	err := ValidateAndReturnError(v)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "must be a valid UUID")
}

func TestValidator_NoErrors(t *testing.T) {
	v := NewValidator().
		Field("project_id", "4b8f0d4e-8f3b-4b43-9d55-0c7f5b3a1d2e", Required, UUID).
		Field("data", []byte("x"), Required, MaxBytes(10))

	assert.False(t, v.HasErrors())
	assert.NoError(t, ValidateAndReturnError(v))
}

func TestConfigValidate(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", "file::memory:")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.NoError(t, cfg.Validate(false))

	err = cfg.Validate(true)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "CONFIG_ERROR", appErr.Code)
	assert.ErrorIs(t, err, ErrInvalidInput)

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate(false))
}

func TestStatusReasons(t *testing.T) {
	err := NotInvoiceError()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, ReasonNotInvoice, ReasonOf(err))
	assert.Equal(t, MsgNotInvoice, status.Convert(err).Message())

	err = ExtractionFailedError()
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Equal(t, ReasonExtractionFailed, ReasonOf(err))

	assert.Empty(t, ReasonOf(InvalidArgumentError("bad")))
	assert.Empty(t, ReasonOf(ErrNotFound))
}
