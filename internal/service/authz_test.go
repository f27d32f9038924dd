package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/warrantyops/internal/domain"
)

func TestAuthorize(t *testing.T) {
	az := NewAuthorizer("root")

	require.NoError(t, az.Authorize("root", RoleAdmin, ""))
	require.NoError(t, az.Authorize("alice", RoleOwner, "alice"))
	require.NoError(t, az.Authorize("alice", RoleHolder, "alice"))

	assert.ErrorIs(t, az.Authorize("alice", RoleAdmin, ""), domain.ErrNotAuthorized)
	assert.ErrorIs(t, az.Authorize("bob", RoleOwner, "alice"), domain.ErrNotAuthorized)
	// An empty caller never authorizes, even against an empty expected.
	assert.ErrorIs(t, az.Authorize("", RoleOwner, ""), domain.ErrNotAuthorized)
	assert.ErrorIs(t, az.Authorize("", RoleAdmin, ""), domain.ErrNotAuthorized)
}

func TestIsAdmin(t *testing.T) {
	az := NewAuthorizer("root")
	assert.True(t, az.IsAdmin("root"))
	assert.False(t, az.IsAdmin("alice"))
	assert.False(t, az.IsAdmin(""))
}
