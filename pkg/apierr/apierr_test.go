package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesAcrossWrap(t *testing.T) {
	wrapped := Wrap(ErrTenantNotFound, fmt.Errorf("lookup %q: %w", "acme", errors.New("boom")))
	assert.ErrorIs(t, wrapped, ErrTenantNotFound)
	assert.NotErrorIs(t, wrapped, ErrClientNotFound)
}

func TestOAuthBody(t *testing.T) {
	body := OAuthBody(ErrInvalidClient)
	assert.Equal(t, "invalid_client", body["error"])
	assert.NotEmpty(t, body["error_description"])
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := Wrap(ErrClientNotFound, inner)
	assert.Equal(t, inner, errors.Unwrap(wrapped))
}
