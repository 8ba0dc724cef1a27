package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	cause := fmt.Errorf("connection reset")

	tests := []struct {
		name     string
		err      *AppError
		wantType ErrorType
		wantMsg  string
	}{
		{"network", NewNetworkError("download failed", cause), ErrTypeNetwork, "[NETWORK] download failed: connection reset"},
		{"parsing", NewParsingError("bad csv", nil), ErrTypeParsing, "[PARSING] bad csv"},
		{"validation", NewAppValidationError("factor must be positive"), ErrTypeValidation, "[VALIDATION] factor must be positive"},
		{"not found", NewNotFoundError("operation"), ErrTypeNotFound, "[NOT_FOUND] operation not found"},
		{"config", NewConfigError("bad port", nil), ErrTypeConfig, "[CONFIG] bad port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, tt.wantType, TypeOf(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}

	wrapped := NewStorageError("write failed", cause)
	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, IsNotFound(NewNotFoundError("year")))
	assert.False(t, IsNotFound(cause))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}

func TestAppErrorWithContext(t *testing.T) {
	err := (&AppError{Type: ErrTypeValidation, Message: "x"}).WithContext("year", 2022)
	assert.Equal(t, 2022, err.Context["year"])
}

func TestErrValidation(t *testing.T) {
	err := ErrValidation("year", "must be one of 2018 2020 2022")

	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "VALIDATION_FAILED", err.ErrorCode)
	assert.Equal(t, "year: must be one of 2018 2020 2022", err.Error())
	assert.Equal(t, FieldError{Field: "year", Message: "must be one of 2018 2020 2022"}, err.Details)
}

func TestProblemDetailsMarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "/api/x").
		WithExtension("trace_id", "abc")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "abc", got["trace_id"])
	assert.Equal(t, float64(404), got["status"])
	assert.Equal(t, "/api/x", got["instance"])
	_, hasDetail := got["detail"]
	assert.False(t, hasDetail)
}
