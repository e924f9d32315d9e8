package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/eventdesk/accounts/internal/store"
	"github.com/eventdesk/accounts/types"
)

// Attachment says where a requested role will land.
type Attachment int

const (
	// AttachNewIdentity means no identity exists for the email yet.
	AttachNewIdentity Attachment = iota + 1
	// AttachExistingIdentity adds the role to a verified identity.
	AttachExistingIdentity
)

// Resolution is the outcome of a successful role resolution.
type Resolution struct {
	Attachment Attachment
	Identity   types.Identity
	Roles      []types.Role
}

// RoleAttachmentManager decides whether a role may be attached to the
// identity behind an email. Roles are additive, but only once the email has
// been verified.
type RoleAttachmentManager struct{}

func NewRoleAttachmentManager() *RoleAttachmentManager {
	return &RoleAttachmentManager{}
}

// Resolve inspects the identity for email. Inside a transaction the
// identity row stays locked until commit, so concurrent attachments to the
// same identity are serialized.
func (m *RoleAttachmentManager) Resolve(ctx context.Context, repos store.Repositories, email string, role types.Role) (Resolution, error) {
	identity, err := repos.Identities().GetByEmailForUpdate(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Resolution{Attachment: AttachNewIdentity}, nil
		}
		return Resolution{}, fmt.Errorf("resolve identity: %w", err)
	}

	roles, err := repos.Profiles().Roles(ctx, identity.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve roles: %w", err)
	}

	if slices.Contains(roles, role) {
		return Resolution{}, ErrRoleAlreadyAttached
	}
	if !identity.EmailVerified {
		return Resolution{}, ErrUnverifiedIdentityCannotExpand
	}

	return Resolution{
		Attachment: AttachExistingIdentity,
		Identity:   identity,
		Roles:      roles,
	}, nil
}
