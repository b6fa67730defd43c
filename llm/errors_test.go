package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		status int
		fatal  bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
		{http.StatusUnauthorized, true},
		{http.StatusBadRequest, true},
		{http.StatusNotFound, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := newStatusError("qwen-plus", tt.status, []byte("body"))
			assert.Equal(t, tt.fatal, IsFatal(err))
			assert.Equal(t, tt.status, StatusCode(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestNewStatusError_TruncatesBody(t *testing.T) {
	err := newStatusError("qwen-plus", http.StatusBadGateway, []byte(strings.Repeat("x", 500)))
	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Len(t, se.Body, maxErrorBody+3)
	assert.Contains(t, err.Error(), "endpoint qwen-plus returned status 502")
}

func TestStatusCode_NotAStatusError(t *testing.T) {
	assert.Zero(t, StatusCode(errors.New("dial tcp: refused")))
	assert.False(t, IsFatal(errors.New("dial tcp: refused")))
	assert.True(t, IsFatal(fatal(ErrMissingAPIKey)))
}
