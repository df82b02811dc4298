package authz

import (
	"github.com/google/uuid"
)

// SharingScope is the legacy coarse sharing flag being phased out in favour
// of explicit per-project permissions. ScopeNone is the post-migration state.
type SharingScope string

const (
	ScopeNone     SharingScope = ""
	ScopeAllUsers SharingScope = "ALL_USERS"
	ScopeEveryone SharingScope = "EVERYONE"
)

// Permission is a single (contributor, access level) grant within a policy.
// Change tracking mirrors what the stores need for auditing: a permission
// built in memory is a new record until saved, and SetAccess marks it
// changed until the policy is saved.
type Permission struct {
	ID          string
	Contributor ContributorRef
	Access      AccessLevel

	newRecord bool
	changed   bool
}

// BuildPermission creates an unsaved permission attached to nothing yet.
// Permissions loaded from storage are plain struct literals and start clean.
func BuildPermission(contributor ContributorRef, access AccessLevel) *Permission {
	return &Permission{
		ID:          uuid.New().String(),
		Contributor: contributor,
		Access:      access,
		newRecord:   true,
	}
}

// SetAccess updates the access level and records the change. Setting the
// same level is a no-op.
func (p *Permission) SetAccess(level AccessLevel) {
	if p.Access == level {
		return
	}
	p.Access = level
	p.changed = true
}

func (p *Permission) Changed() bool   { return p.changed }
func (p *Permission) NewRecord() bool { return p.newRecord }

// ClearChanges marks the permission as persisted and clean.
func (p *Permission) ClearChanges() {
	p.newRecord = false
	p.changed = false
}

// Policy is the authorization configuration attached 1:1 to a resource:
// a default access level for anyone not covered by an explicit permission,
// the ordered permission list, and the legacy sharing scope.
type Policy struct {
	ID          string
	Access      AccessLevel
	Scope       SharingScope
	Permissions []*Permission

	accessChanged bool
}

// NewPolicy creates a policy with the given default access and no permissions.
func NewPolicy(access AccessLevel) *Policy {
	return &Policy{ID: uuid.New().String(), Access: access}
}

// EffectiveDefault returns the access granted to anyone not matched by an
// explicit permission.
func (p *Policy) EffectiveDefault() AccessLevel { return p.Access }

// IsLegacyScoped reports whether the policy still carries the ALL_USERS
// legacy scope and needs migration.
func (p *Policy) IsLegacyScoped() bool { return p.Scope == ScopeAllUsers }

// ClearScope resets the legacy sharing scope. Idempotent and always safe.
// Scope changes alone are deliberately not tracked for auditing.
func (p *Policy) ClearScope() { p.Scope = ScopeNone }

// SetAccess updates the default access level and records the change.
func (p *Policy) SetAccess(level AccessLevel) {
	if p.Access == level {
		return
	}
	p.Access = level
	p.accessChanged = true
}

// AccessChanged reports whether the default access level changed since the
// policy was last saved.
func (p *Policy) AccessChanged() bool { return p.accessChanged }

// ClearChanges marks the policy and all its permissions persisted and clean.
func (p *Policy) ClearChanges() {
	p.accessChanged = false
	for _, perm := range p.Permissions {
		perm.ClearChanges()
	}
}

// PermissionsFor returns every permission targeting the given contributor.
// Well-formed data has at most one, but duplicates are tolerated and all
// are returned so callers can elevate every copy.
func (p *Policy) PermissionsFor(c ContributorRef) []*Permission {
	var matched []*Permission
	for _, perm := range p.Permissions {
		if perm.Contributor == c {
			matched = append(matched, perm)
		}
	}
	return matched
}

// Grant ensures the contributor holds at least the given level. Existing
// permissions are raised to max(existing, level), never lowered; if none
// exist a new permission is appended at exactly the given level. Returns
// the permissions now covering the contributor.
func (p *Policy) Grant(c ContributorRef, level AccessLevel) []*Permission {
	existing := p.PermissionsFor(c)
	if len(existing) > 0 {
		for _, perm := range existing {
			if perm.Access < level {
				perm.SetAccess(level)
			}
		}
		return existing
	}
	perm := BuildPermission(c, level)
	p.Permissions = append(p.Permissions, perm)
	return []*Permission{perm}
}

// Revoke removes every permission targeting the contributor and reports
// whether any were removed.
func (p *Policy) Revoke(c ContributorRef) bool {
	kept := p.Permissions[:0]
	removed := false
	for _, perm := range p.Permissions {
		if perm.Contributor == c {
			removed = true
			continue
		}
		kept = append(kept, perm)
	}
	p.Permissions = kept
	return removed
}

// GrantedAccess returns the maximum access level any permission grants to
// the given identity set. Permissions to the same contributor tie-break by
// taking the maximum. No permissions matching means NoAccess.
func (p *Policy) GrantedAccess(identity IdentitySet) AccessLevel {
	granted := NoAccess
	for _, perm := range p.Permissions {
		if identity.Contains(perm.Contributor) {
			granted = MaxAccess(granted, perm.Access)
		}
	}
	return granted
}
