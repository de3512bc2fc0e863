// Copyright (c) 2026 Aegia. All rights reserved.
// Author: minh.dangngo.jp@gmail.com

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nmdang/aegia/internal/platform/sec"
)

/*
TestUserRole_AtLeast verifies the strict total order over roles.
*/
func TestUserRole_AtLeast(t *testing.T) {
	tests := []struct {
		name   string
		held   sec.UserRole
		target sec.UserRole
		want   bool
	}{
		{"admin_vs_admin", sec.RoleAdmin, sec.RoleAdmin, true},
		{"admin_vs_moderator", sec.RoleAdmin, sec.RoleModerator, true},
		{"admin_vs_member", sec.RoleAdmin, sec.RoleMember, true},
		{"moderator_vs_admin", sec.RoleModerator, sec.RoleAdmin, false},
		{"moderator_vs_moderator", sec.RoleModerator, sec.RoleModerator, true},
		{"member_vs_moderator", sec.RoleMember, sec.RoleModerator, false},
		{"member_vs_member", sec.RoleMember, sec.RoleMember, true},
		{"unknown_vs_member", sec.UserRole("vip"), sec.RoleMember, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.held.AtLeast(tt.target))
		})
	}
}

/*
TestUserRole_Known verifies detection of undefined role strings.
*/
func TestUserRole_Known(t *testing.T) {
	assert.True(t, sec.RoleAdmin.Known())
	assert.True(t, sec.RoleModerator.Known())
	assert.True(t, sec.RoleMember.Known())
	assert.False(t, sec.UserRole("").Known())
	assert.False(t, sec.UserRole("Admin").Known())
	assert.False(t, sec.UserRole("root").Known())
}
