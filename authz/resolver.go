package authz

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
)

// AllUsersSharingScopeResolver detects policies with the legacy ALL_USERS
// sharing scope and rewrites them so the scope is removed but the same
// access is granted explicitly to the resource's associated projects.
// Part of the upgrade that retires the old blanket sharing scopes.
type AllUsersSharingScopeResolver struct {
	auditor *Auditor
}

func NewAllUsersSharingScopeResolver() *AllUsersSharingScopeResolver {
	return &AllUsersSharingScopeResolver{auditor: NewAuditor()}
}

// Auditor returns the audit trail accumulated by Resolve calls.
func (r *AllUsersSharingScopeResolver) Auditor() *Auditor { return r.auditor }

// Resolve rewrites the item's policy in memory and returns the item; the
// caller persists it. A second call on an already-resolved item is a no-op.
//
// Any non-nil scope is always cleared. Only ALL_USERS additionally
// distributes the default access to the item's projects and downgrades the
// default to private; other legacy scopes keep permissions and access
// untouched. An item with no projects simply gets its scope cleared.
func (r *AllUsersSharingScopeResolver) Resolve(item Authorizable) Authorizable {
	policy := item.Policy()
	if policy == nil {
		panic(fmt.Sprintf("authz: %s %s has no policy", item.AuthType(), item.AuthID()))
	}
	scope := policy.Scope
	if scope == ScopeNone {
		return item
	}

	policy.ClearScope()
	if scope == ScopeAllUsers {
		buildPoliciesForProjects(policy, item.ProjectIDs())
		policy.SetAccess(NoAccess)
	}
	r.auditor.Audit(item)
	return item
}

// buildPoliciesForProjects grants each project the policy's default access.
// Existing project permissions are elevated to at least the default, never
// lowered; projects without one get a new permission at exactly the default.
func buildPoliciesForProjects(policy *Policy, projectIDs []string) {
	access := policy.Access
	for _, projectID := range projectIDs {
		policy.Grant(ProjectRef(projectID), access)
	}
}

// DefaultPolicyStore is the slice of storage the legacy-default cleanup
// needs: project default policies and the flag pointing at them.
type DefaultPolicyStore interface {
	// LegacyDefaultPolicyIDs returns the IDs of project default policies
	// still carrying the ALL_USERS scope.
	LegacyDefaultPolicyIDs(ctx context.Context) ([]string, error)
	// ProjectsUsingDefaultPolicy returns projects that have the given
	// policy as default with use_default_policy enabled.
	ProjectsUsingDefaultPolicy(ctx context.Context, policyID string) ([]string, error)
	DisableUseDefaultPolicy(ctx context.Context, projectID string) error
	DeletePolicy(ctx context.Context, policyID string) error
}

// RemoveLegacyDefaultPolicies deletes project default policies that still
// have the ALL_USERS scope. These shouldn't be in use, but any project
// still pointing at one gets its use_default_policy flag switched off
// first. This is a separate cleanup pass from per-resource Resolve.
func (r *AllUsersSharingScopeResolver) RemoveLegacyDefaultPolicies(ctx context.Context, store DefaultPolicyStore) error {
	policyIDs, err := store.LegacyDefaultPolicyIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to find legacy default policies: %w", err)
	}

	for _, policyID := range policyIDs {
		projectIDs, err := store.ProjectsUsingDefaultPolicy(ctx, policyID)
		if err != nil {
			return fmt.Errorf("failed to find projects for policy %s: %w", policyID, err)
		}
		for _, projectID := range projectIDs {
			if err := store.DisableUseDefaultPolicy(ctx, projectID); err != nil {
				return fmt.Errorf("failed to disable default policy on project %s: %w", projectID, err)
			}
		}
		if err := store.DeletePolicy(ctx, policyID); err != nil {
			return fmt.Errorf("failed to delete policy %s: %w", policyID, err)
		}
	}
	return nil
}

// Auditor tracks resources actually mutated by the resolver and exports
// them as a CSV report for operator review.
type Auditor struct {
	logs [][]string
}

func NewAuditor() *Auditor {
	return &Auditor{}
}

// Audit records the item if its policy has unsaved changes relevant to the
// migration. Clearing the scope alone is not auditable.
func (a *Auditor) Audit(item Authorizable) {
	if a.ChangedForAudit(item) {
		a.logs = append(a.logs, createLog(item))
	}
}

// ChangedForAudit reports whether the item's policy carries an unsaved
// access-type change, a changed permission, or an unsaved new permission.
// Callers re-check this after Resolve since Resolve does not persist.
func (a *Auditor) ChangedForAudit(item Authorizable) bool {
	policy := item.Policy()
	if policy.AccessChanged() {
		return true
	}
	for _, perm := range policy.Permissions {
		if perm.Changed() || perm.NewRecord() {
			return true
		}
	}
	return false
}

// Len returns the number of audited items.
func (a *Auditor) Len() int { return len(a.logs) }

// Save writes the accumulated log as CSV. The first three columns are
// fixed; the remainder of each row is the item's project ID list.
func (a *Auditor) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audit file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Class", "id", "Contributor id", "Project ids"}); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	for _, log := range a.logs {
		if err := w.Write(log); err != nil {
			return fmt.Errorf("failed to write audit row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func createLog(item Authorizable) []string {
	log := []string{item.AuthType(), item.AuthID(), item.ContributorID()}
	return append(log, item.ProjectIDs()...)
}
