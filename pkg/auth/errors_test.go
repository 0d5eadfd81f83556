package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAuthFailure(t *testing.T) {
	taxonomy := []error{
		ErrInvalidCredentials,
		ErrInvalidToken,
		ErrWrongTokenType,
		ErrTokenRevokedOrExpired,
		ErrMalformedToken,
		ErrSessionClosed,
		ErrForbidden,
	}
	for _, err := range taxonomy {
		assert.True(t, IsAuthFailure(err), err.Error())
		assert.True(t, IsAuthFailure(fmt.Errorf("wrapped: %w", err)), err.Error())
	}

	assert.False(t, IsAuthFailure(nil))
	assert.False(t, IsAuthFailure(errors.New("connection refused")))
	assert.False(t, IsAuthFailure(context.DeadlineExceeded))
}
