package services

import (
	"context"
	"testing"

	"github.com/eventdesk/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAttachmentManager_Resolve(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB()
	repos := db.Repositories()

	pending, err := repos.Identities().Create(ctx, types.Identity{Email: "pending@example.com", PrimaryRole: types.RoleAttendee})
	require.NoError(t, err)
	require.NoError(t, repos.Profiles().CreateAttendee(ctx, types.AttendeeProfile{IdentityID: pending.ID}))

	verified, err := repos.Identities().Create(ctx, types.Identity{Email: "verified@example.com", PrimaryRole: types.RoleAttendee, EmailVerified: true})
	require.NoError(t, err)
	require.NoError(t, repos.Profiles().CreateAttendee(ctx, types.AttendeeProfile{IdentityID: verified.ID}))

	m := NewRoleAttachmentManager()

	t.Run("unknown email attaches a new identity", func(t *testing.T) {
		res, err := m.Resolve(ctx, repos, "new@example.com", types.RoleOrganizer)
		require.NoError(t, err)
		assert.Equal(t, AttachNewIdentity, res.Attachment)
		assert.Empty(t, res.Roles)
	})

	t.Run("held role conflicts regardless of verification", func(t *testing.T) {
		_, err := m.Resolve(ctx, repos, "pending@example.com", types.RoleAttendee)
		assert.ErrorIs(t, err, ErrRoleAlreadyAttached)
		_, err = m.Resolve(ctx, repos, "verified@example.com", types.RoleAttendee)
		assert.ErrorIs(t, err, ErrRoleAlreadyAttached)
	})

	t.Run("unverified identity cannot expand", func(t *testing.T) {
		_, err := m.Resolve(ctx, repos, "pending@example.com", types.RoleOrganizer)
		assert.ErrorIs(t, err, ErrUnverifiedIdentityCannotExpand)
	})

	t.Run("verified identity expands", func(t *testing.T) {
		res, err := m.Resolve(ctx, repos, "verified@example.com", types.RoleOrganizer)
		require.NoError(t, err)
		assert.Equal(t, AttachExistingIdentity, res.Attachment)
		assert.Equal(t, verified.ID, res.Identity.ID)
		assert.Equal(t, []types.Role{types.RoleAttendee}, res.Roles)
	})
}
