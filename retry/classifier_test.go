package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_DefaultRule(t *testing.T) {
	var c Classifier

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "500 internal server error", status: 500, retryable: true},
		{name: "502 bad gateway", status: 502, retryable: true},
		{name: "503 service unavailable", status: 503, retryable: true},
		{name: "504 gateway timeout", status: 504, retryable: true},
		{name: "429 too many requests", status: 429, retryable: true},
		{name: "400 bad request", status: 400, retryable: false},
		{name: "401 unauthorized", status: 401, retryable: false},
		{name: "404 not found", status: 404, retryable: false},
		{name: "410 gone", status: 410, retryable: false},
		{name: "422 unprocessable", status: 422, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, c.Retryable(tt.status))
		})
	}
}

func TestNewClassifier_ExplicitStatuses(t *testing.T) {
	c := NewClassifier(503, 404)

	assert.True(t, c.Retryable(503))
	assert.True(t, c.Retryable(404), "explicit set replaces the default rule")
	assert.False(t, c.Retryable(500), "statuses outside the explicit set are permanent")
	assert.False(t, c.Retryable(429))
}

func TestNewClassifier_EmptySetRetriesNothing(t *testing.T) {
	c := NewClassifier()

	assert.False(t, c.Retryable(500))
	assert.False(t, c.Retryable(429))
}
