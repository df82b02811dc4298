package authz

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyResource(access AccessLevel, projects ...string) *Resource {
	policy := NewPolicy(access)
	policy.Scope = ScopeAllUsers
	return &Resource{
		Type:        "document",
		ID:          "doc-1",
		Title:       "Legacy document",
		Contributor: "owner-1",
		Projects:    projects,
		Pol:         policy,
	}
}

func TestResolveAllUsersScope(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Accessible, "proj-1")

	resolver.Resolve(res)

	assert.Equal(t, ScopeNone, res.Pol.Scope)
	assert.Equal(t, NoAccess, res.Pol.Access, "default is downgraded to private")
	require.Len(t, res.Pol.Permissions, 1)
	assert.Equal(t, ProjectRef("proj-1"), res.Pol.Permissions[0].Contributor)
	assert.Equal(t, Accessible, res.Pol.Permissions[0].Access, "project keeps the old default")
	assert.Equal(t, 1, resolver.Auditor().Len())
}

func TestResolveGrantsEveryProject(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Visible, "proj-1", "proj-2", "proj-3")

	resolver.Resolve(res)

	require.Len(t, res.Pol.Permissions, 3)
	for i, projectID := range []string{"proj-1", "proj-2", "proj-3"} {
		assert.Equal(t, ProjectRef(projectID), res.Pol.Permissions[i].Contributor)
		assert.Equal(t, Visible, res.Pol.Permissions[i].Access)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Accessible, "proj-1")

	resolver.Resolve(res)
	res.Pol.ClearChanges()
	resolver.Resolve(res)

	assert.Len(t, res.Pol.Permissions, 1)
	assert.Equal(t, NoAccess, res.Pol.Access)
	assert.Equal(t, 1, resolver.Auditor().Len(), "second pass changes nothing and audits nothing")
}

func TestResolveElevatesExistingProjectPermission(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Editing, "proj-1")
	res.Pol.Permissions = []*Permission{
		{ID: "p1", Contributor: ProjectRef("proj-1"), Access: Visible},
	}

	resolver.Resolve(res)

	require.Len(t, res.Pol.Permissions, 1)
	assert.Equal(t, Editing, res.Pol.Permissions[0].Access)
	assert.True(t, res.Pol.Permissions[0].Changed())
}

func TestResolveKeepsHigherProjectPermission(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Visible, "proj-1")
	res.Pol.Permissions = []*Permission{
		{ID: "p1", Contributor: ProjectRef("proj-1"), Access: Managing},
	}

	resolver.Resolve(res)

	require.Len(t, res.Pol.Permissions, 1)
	assert.Equal(t, Managing, res.Pol.Permissions[0].Access, "existing grant is never lowered")
	assert.False(t, res.Pol.Permissions[0].Changed())
	// The default still changed, so the item is audited
	assert.Equal(t, 1, resolver.Auditor().Len())
}

func TestResolveLeavesPersonPermissionsAlone(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Accessible, "proj-1")
	res.Pol.Permissions = []*Permission{
		{ID: "p1", Contributor: PersonRef("alice"), Access: Managing},
	}

	resolver.Resolve(res)

	require.Len(t, res.Pol.Permissions, 2)
	assert.Equal(t, PersonRef("alice"), res.Pol.Permissions[0].Contributor)
	assert.Equal(t, Managing, res.Pol.Permissions[0].Access)
	assert.Equal(t, ProjectRef("proj-1"), res.Pol.Permissions[1].Contributor)
}

func TestResolveWithoutProjects(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Accessible)

	resolver.Resolve(res)

	assert.Equal(t, ScopeNone, res.Pol.Scope)
	assert.Equal(t, NoAccess, res.Pol.Access)
	assert.Empty(t, res.Pol.Permissions)
	assert.Equal(t, 1, resolver.Auditor().Len())
}

func TestResolveOtherScopeOnlyClears(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	policy := NewPolicy(Accessible)
	policy.Scope = ScopeEveryone
	res := &Resource{Type: "document", ID: "doc-2", Projects: []string{"proj-1"}, Pol: policy}

	resolver.Resolve(res)

	assert.Equal(t, ScopeNone, policy.Scope)
	assert.Equal(t, Accessible, policy.Access, "non ALL_USERS scopes keep their default")
	assert.Empty(t, policy.Permissions)
	assert.Equal(t, 0, resolver.Auditor().Len(), "clearing the scope alone is not audited")
}

func TestResolveNoScopeIsNoop(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	policy := NewPolicy(Accessible)
	res := &Resource{Type: "document", ID: "doc-3", Projects: []string{"proj-1"}, Pol: policy}

	resolver.Resolve(res)

	assert.Equal(t, Accessible, policy.Access)
	assert.Empty(t, policy.Permissions)
	assert.Equal(t, 0, resolver.Auditor().Len())
}

func TestResolvePanicsWithoutPolicy(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	assert.Panics(t, func() {
		resolver.Resolve(&Resource{Type: "document", ID: "doc-4"})
	})
}

func TestChangedForAudit(t *testing.T) {
	auditor := NewAuditor()

	clean := &Resource{Type: "document", ID: "d", Pol: NewPolicy(Visible)}
	assert.False(t, auditor.ChangedForAudit(clean))

	accessChanged := &Resource{Type: "document", ID: "d", Pol: NewPolicy(Visible)}
	accessChanged.Pol.SetAccess(Managing)
	assert.True(t, auditor.ChangedForAudit(accessChanged))

	newPerm := &Resource{Type: "document", ID: "d", Pol: NewPolicy(Visible)}
	newPerm.Pol.Grant(ProjectRef("proj-1"), Visible)
	assert.True(t, auditor.ChangedForAudit(newPerm))

	changedPerm := &Resource{Type: "document", ID: "d", Pol: NewPolicy(Visible)}
	changedPerm.Pol.Permissions = []*Permission{{Contributor: ProjectRef("proj-1"), Access: Visible}}
	changedPerm.Pol.Permissions[0].SetAccess(Editing)
	assert.True(t, auditor.ChangedForAudit(changedPerm))
}

func TestAuditorSave(t *testing.T) {
	resolver := NewAllUsersSharingScopeResolver()
	res := legacyResource(Accessible, "proj-1", "proj-2")
	resolver.Resolve(res)

	path := filepath.Join(t.TempDir(), "audit.csv")
	require.NoError(t, resolver.Auditor().Save(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Class", "id", "Contributor id", "Project ids"}, rows[0])
	assert.Equal(t, []string{"document", "doc-1", "owner-1", "proj-1", "proj-2"}, rows[1])
}

// fakeDefaultPolicyStore records the cleanup calls
type fakeDefaultPolicyStore struct {
	legacyIDs map[string][]string // policy id -> projects using it
	disabled  []string
	deleted   []string
}

func (s *fakeDefaultPolicyStore) LegacyDefaultPolicyIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.legacyIDs))
	for id := range s.legacyIDs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeDefaultPolicyStore) ProjectsUsingDefaultPolicy(_ context.Context, policyID string) ([]string, error) {
	return s.legacyIDs[policyID], nil
}

func (s *fakeDefaultPolicyStore) DisableUseDefaultPolicy(_ context.Context, projectID string) error {
	s.disabled = append(s.disabled, projectID)
	return nil
}

func (s *fakeDefaultPolicyStore) DeletePolicy(_ context.Context, policyID string) error {
	s.deleted = append(s.deleted, policyID)
	return nil
}

func TestRemoveLegacyDefaultPolicies(t *testing.T) {
	store := &fakeDefaultPolicyStore{
		legacyIDs: map[string][]string{
			"pol-1": {"proj-1", "proj-2"},
			"pol-2": nil,
		},
	}
	resolver := NewAllUsersSharingScopeResolver()

	require.NoError(t, resolver.RemoveLegacyDefaultPolicies(context.Background(), store))

	assert.ElementsMatch(t, []string{"proj-1", "proj-2"}, store.disabled)
	assert.ElementsMatch(t, []string{"pol-1", "pol-2"}, store.deleted)
}
