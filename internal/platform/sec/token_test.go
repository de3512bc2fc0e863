// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package sec_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmdang/aegia/internal/platform/sec"
)

/*
TestGenerateSecureToken verifies token shape, entropy length, and uniqueness.
*/
func TestGenerateSecureToken(t *testing.T) {
	token, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)

	// URL-safe base64 without padding decodes back to the requested bytes.
	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	other, err := sec.GenerateSecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

/*
TestHashToken verifies the deterministic digest used for cache keys.
*/
func TestHashToken(t *testing.T) {
	digest := sec.HashToken("some-token-value")

	assert.Len(t, digest, 64)
	assert.Equal(t, digest, sec.HashToken("some-token-value"))
	assert.NotEqual(t, digest, sec.HashToken("some-token-valuf"))
}

/*
TestConstantTimeEquals verifies exact matching semantics.
*/
func TestConstantTimeEquals(t *testing.T) {
	assert.True(t, sec.ConstantTimeEquals("abc123", "abc123"))
	assert.False(t, sec.ConstantTimeEquals("abc123", "abc124"))
	assert.False(t, sec.ConstantTimeEquals("abc123", "abc12"))
	assert.False(t, sec.ConstantTimeEquals("abc123", "ABC123"))
	assert.True(t, sec.ConstantTimeEquals("", ""))
	assert.False(t, sec.ConstantTimeEquals("", "a"))
}
