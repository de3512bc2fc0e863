// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmdang/aegia/internal/auth"
)

func throttleKey(purpose auth.Purpose, key string) string {
	return "auth:throttle:" + string(purpose) + ":" + key
}

/*
TestCounter_IncrementAndPeek verifies basic counting and that Peek never
records a failure.
*/
func TestCounter_IncrementAndPeek(t *testing.T) {
	cache, _ := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	count, err := counter.Peek(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for i := int64(1); i <= 3; i++ {
		count, err = counter.Increment(ctx, "alice", auth.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err = counter.Peek(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	// Peeks do not disturb the count.
	count, err = counter.Peek(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

/*
TestCounter_WindowLapse verifies that a lapsed window restarts counting from
one.
*/
func TestCounter_WindowLapse(t *testing.T) {
	cache, mr := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	_, err := counter.Increment(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	_, err = counter.Increment(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)

	mr.FastForward(auth.LoginWindow + time.Second)

	count, err := counter.Increment(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

/*
TestCounter_KeyIsolation verifies that identities and purposes count
independently.
*/
func TestCounter_KeyIsolation(t *testing.T) {
	cache, _ := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	_, err := counter.Increment(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	_, err = counter.Increment(ctx, "alice", auth.PurposeOTP)
	require.NoError(t, err)

	count, err := counter.Peek(ctx, "bob", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = counter.Peek(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

/*
TestCounter_Reset verifies that a reset clears the failure history.
*/
func TestCounter_Reset(t *testing.T) {
	cache, _ := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := counter.Increment(ctx, "alice", auth.PurposeLogin)
		require.NoError(t, err)
	}

	require.NoError(t, counter.Reset(ctx, "alice", auth.PurposeLogin))

	count, err := counter.Peek(ctx, "alice", auth.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

/*
TestCounter_EscalatingLockout verifies that OTP failures past the threshold
extend the lockout window instead of letting it be waited out.
*/
func TestCounter_EscalatingLockout(t *testing.T) {
	cache, mr := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	key := throttleKey(auth.PurposeOTP, "user-1")

	for i := int64(1); i <= auth.OTPMaxAttempts; i++ {
		count, err := counter.Increment(ctx, "user-1", auth.PurposeOTP)
		require.NoError(t, err)
		assert.Equal(t, count >= auth.OTPMaxAttempts, counter.Exceeded(count, auth.PurposeOTP))
	}

	// At the threshold the lockout equals the base window.
	assert.Equal(t, auth.OTPWindow, mr.TTL(key))

	// One more failure doubles it.
	_, err := counter.Increment(ctx, "user-1", auth.PurposeOTP)
	require.NoError(t, err)
	assert.Equal(t, 2*auth.OTPWindow, mr.TTL(key))
}

/*
TestCounter_LockoutCap verifies that the escalating window never exceeds the
configured ceiling.
*/
func TestCounter_LockoutCap(t *testing.T) {
	cache, mr := newTestCache(t)
	counter := auth.NewCounter(cache, nil, testLogger())
	ctx := context.Background()

	attempts := int(auth.OTPLockoutCap/auth.OTPWindow) + auth.OTPMaxAttempts + 10
	for i := 0; i < attempts; i++ {
		_, err := counter.Increment(ctx, "user-1", auth.PurposeOTP)
		require.NoError(t, err)
	}

	assert.Equal(t, auth.OTPLockoutCap, mr.TTL(throttleKey(auth.PurposeOTP, "user-1")))
}
