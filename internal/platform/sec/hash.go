// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

// Package sec provides cryptographic primitives for the authentication core.
//
// # Architecture
//
// This package isolates security-sensitive code (password hashing, secure
// random tokens, TOTP verification, role ordering) from the domain logic.
// The core consumes it through small injected capabilities such as
// [PasswordVerifier] so no component depends on a specific algorithm.
package sec

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordVerifier is the opaque credential-check capability consumed by the
// authentication core. It reports whether plaintext matches the stored hash.
type PasswordVerifier func(plaintext, hash string) bool

// HashPassword hashes a plain-text password using the bcrypt algorithm.
func HashPassword(plainTextPassword string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("sec: failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// CheckPasswordHash compares a plain-text password with its hashed version.
// It satisfies [PasswordVerifier] and is the default verifier in production.
func CheckPasswordHash(plainTextPassword, existingHash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(existingHash), []byte(plainTextPassword))
	return err == nil
}
