// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmdang/aegia/internal/platform/sec"
)

// rfcSecret is the shared secret from the RFC 6238 appendix test vectors.
var rfcSecret = []byte("12345678901234567890")

/*
TestTOTPCode_RFCVectors checks code derivation against the published RFC 6238
SHA-1 test vectors, truncated to six digits.
*/
func TestTOTPCode_RFCVectors(t *testing.T) {
	tests := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
		{20000000000, "353130"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, sec.TOTPCode(rfcSecret, time.Unix(tt.unix, 0)), "t=%d", tt.unix)
	}
}

/*
TestVerifyTOTP_Skew verifies acceptance of adjacent time steps and rejection
beyond the skew window.
*/
func TestVerifyTOTP_Skew(t *testing.T) {
	at := time.Unix(1111111109, 0)

	// Exact, previous, and next step are accepted.
	assert.True(t, sec.VerifyTOTP(rfcSecret, sec.TOTPCode(rfcSecret, at), at))
	assert.True(t, sec.VerifyTOTP(rfcSecret, sec.TOTPCode(rfcSecret, at.Add(-sec.TOTPPeriod)), at))
	assert.True(t, sec.VerifyTOTP(rfcSecret, sec.TOTPCode(rfcSecret, at.Add(sec.TOTPPeriod)), at))

	// Two steps away is outside the skew.
	assert.False(t, sec.VerifyTOTP(rfcSecret, sec.TOTPCode(rfcSecret, at.Add(-2*sec.TOTPPeriod)), at))
	assert.False(t, sec.VerifyTOTP(rfcSecret, sec.TOTPCode(rfcSecret, at.Add(2*sec.TOTPPeriod)), at))
}

/*
TestVerifyTOTP_Malformed verifies rejection of garbage input before any
cryptographic work.
*/
func TestVerifyTOTP_Malformed(t *testing.T) {
	at := time.Unix(59, 0)

	assert.False(t, sec.VerifyTOTP(rfcSecret, "", at))
	assert.False(t, sec.VerifyTOTP(rfcSecret, "28708", at))
	assert.False(t, sec.VerifyTOTP(rfcSecret, "2870822", at))
	assert.False(t, sec.VerifyTOTP(rfcSecret, "28708a", at))
	assert.False(t, sec.VerifyTOTP(nil, "287082", at))
}

/*
TestGenerateTOTPSecret verifies entropy length and the base32 form.
*/
func TestGenerateTOTPSecret(t *testing.T) {
	raw, encoded, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)

	assert.Len(t, raw, sec.TOTPSecretLength)
	assert.NotContains(t, encoded, "=")

	// Two secrets never collide.
	_, other, err := sec.GenerateTOTPSecret()
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other)
}

/*
TestTOTPProvisionURI verifies the otpauth URI shape consumed by
authenticator apps.
*/
func TestTOTPProvisionURI(t *testing.T) {
	uri := sec.TOTPProvisionURI("Aegia", "alice@example.com", "JBSWY3DPEHPK3PXP")

	assert.Contains(t, uri, "otpauth://totp/Aegia:alice@example.com")
	assert.Contains(t, uri, "secret=JBSWY3DPEHPK3PXP")
	assert.Contains(t, uri, "issuer=Aegia")
	assert.Contains(t, uri, "digits=6")
	assert.Contains(t, uri, "period=30")
}
