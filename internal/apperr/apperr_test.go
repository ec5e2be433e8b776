package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodePlatformServerError, "fetch repository", cause)

	assert.NotEmpty(t, err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestHTTPStatus_MapsEachCode(t *testing.T) {
	tests := map[Code]int{
		CodeConfigurationNotFound: http.StatusNotFound,
		CodePlatformNotFound:      http.StatusNotFound,
		CodeInvalidConfiguration:  http.StatusUnprocessableEntity,
		CodePlatformAuthFailure:   http.StatusUnauthorized,
		CodePlatformRateLimited:   http.StatusTooManyRequests,
		CodePlatformServerError:   http.StatusBadGateway,
		CodeDuplicateViolation:    http.StatusConflict,
		CodeInternalError:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		e := New(code, "x")
		assert.Equal(t, want, e.HTTPStatus(), "HTTPStatus(%s)", code)
	}
}

func TestIs_MatchesWrappedCode(t *testing.T) {
	err := fmt.Errorf("context: %w", New(CodePlatformNotFound, "no such repo"))

	assert.True(t, Is(err, CodePlatformNotFound))
	assert.False(t, Is(err, CodeInternalError))
}

func TestIs_FalseForPlainError(t *testing.T) {
	assert.False(t, Is(errors.New("plain"), CodeInternalError))
}

func TestRateLimited_DefaultsRetryAfter(t *testing.T) {
	e := RateLimited(0, nil)
	assert.Equal(t, 60, e.RetryAfterS)

	e2 := RateLimited(30, nil)
	assert.Equal(t, 30, e2.RetryAfterS)
}
