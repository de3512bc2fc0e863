// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package sec

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// # Time-Stepped One-Time Passwords (RFC 6238)

// Fixed TOTP parameters. SHA-1 / 6 digits / 30s steps is what every
// mainstream authenticator app ships with.
const (
	// TOTPSecretLength is the raw byte length of a generated shared secret.
	TOTPSecretLength = 20

	// TOTPDigits is the number of decimal digits in a code.
	TOTPDigits = 6

	// TOTPPeriod is the time-step size.
	TOTPPeriod = 30 * time.Second

	// TOTPSkew is the number of adjacent time steps accepted on either side
	// of "now" to tolerate client clock drift.
	TOTPSkew = 1
)

// GenerateTOTPSecret creates a fresh shared secret from OS entropy.
//
// # Returns
//   - The raw secret bytes (persisted on the user record after enrollment).
//   - The base32 encoding shown to the user / embedded in the otpauth URI.
func GenerateTOTPSecret() ([]byte, string, error) {
	raw := make([]byte, TOTPSecretLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("sec: failed to generate totp secret: %w", err)
	}

	encoder := base32.StdEncoding.WithPadding(base32.NoPadding)
	return raw, encoder.EncodeToString(raw), nil
}

// TOTPProvisionURI builds the otpauth:// URI encoded into enrollment QR codes.
func TOTPProvisionURI(issuer, account, secretBase32 string) string {
	label := url.PathEscape(issuer + ":" + account)

	values := url.Values{}
	values.Set("secret", secretBase32)
	values.Set("issuer", issuer)
	values.Set("period", strconv.Itoa(int(TOTPPeriod/time.Second)))
	values.Set("digits", strconv.Itoa(TOTPDigits))
	values.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + values.Encode()
}

// VerifyTOTP checks a submitted code against the shared secret at the given
// instant, accepting codes from the [TOTPSkew] adjacent time steps.
//
// # Security
//
// Each candidate code is compared in constant time. A malformed code (wrong
// length, non-numeric) is rejected before any HMAC work.
func VerifyTOTP(secret []byte, code string, at time.Time) bool {
	if len(secret) == 0 || len(code) != TOTPDigits || !isNumeric(code) {
		return false
	}

	baseCounter := at.Unix() / int64(TOTPPeriod/time.Second)
	for step := -TOTPSkew; step <= TOTPSkew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(hotpCode(secret, counter)), []byte(code)) == 1 {
			return true
		}
	}

	return false
}

// TOTPCode derives the code for a given instant. Exposed for tests and for
// operator tooling that needs to mint a valid code against a known secret.
func TOTPCode(secret []byte, at time.Time) string {
	return hotpCode(secret, at.Unix()/int64(TOTPPeriod/time.Second))
}

// hotpCode implements the RFC 4226 dynamic truncation over an HMAC-SHA1 of
// the big-endian counter.
func hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < TOTPDigits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", TOTPDigits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
