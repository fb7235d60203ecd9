package mqttbridge

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	plain := NewError(ErrCodeConfiguration, "capacity must be > 0")
	assert.Equal(t, "CONFIGURATION_ERROR: capacity must be > 0", plain.Error())

	cause := errors.New("parse \"://\": missing protocol scheme")
	wrapped := NewErrorWithCause(ErrCodeConfiguration, "invalid sink URL", cause)
	assert.Contains(t, wrapped.Error(), "CONFIGURATION_ERROR")
	assert.Contains(t, wrapped.Error(), "invalid sink URL")
	assert.Contains(t, wrapped.Error(), "missing protocol scheme")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewErrorWithCause(ErrCodeStorage, "save dead letter", cause)

	assert.ErrorIs(t, err, cause)

	var bridgeErr *Error
	require.ErrorAs(t, fmt.Errorf("outer: %w", err), &bridgeErr)
	assert.Equal(t, ErrCodeStorage, bridgeErr.Code)
}

func TestIsShutdown(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"queue closed", ErrQueueClosed, true},
		{"pipeline closed", ErrPipelineClosed, true},
		{"wrapped shutdown", fmt.Errorf("push: %w", ErrQueueClosed), true},
		{"configuration error", NewError(ErrCodeConfiguration, "bad"), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsShutdown(tt.err))
		})
	}
}
