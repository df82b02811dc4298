package authz

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ============================================================================
// SimplePolicyStore - SQL implementation of PolicyStore
// ============================================================================

// SimplePolicyStore implements PolicyStore using SQL
type SimplePolicyStore struct {
	db *sql.DB
}

// NewSimplePolicyStore creates a new SimplePolicyStore
func NewSimplePolicyStore(db *sql.DB) *SimplePolicyStore {
	return &SimplePolicyStore{db: db}
}

// Ensure SimplePolicyStore implements PolicyStore
var _ PolicyStore = (*SimplePolicyStore)(nil)

// GetPolicy retrieves a policy with its permissions
func (s *SimplePolicyStore) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	var policy Policy
	var access int
	var scope sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, access_type, sharing_scope
		FROM policies
		WHERE id = $1
	`, id).Scan(&policy.ID, &access, &scope)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}
	policy.Access = AccessLevel(access)
	if scope.Valid {
		policy.Scope = SharingScope(scope.String)
	}

	permissions, err := s.loadPermissions(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Permissions = permissions
	return &policy, nil
}

func (s *SimplePolicyStore) loadPermissions(ctx context.Context, policyID string) ([]*Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contributor_type, contributor_id, access_type
		FROM permissions
		WHERE policy_id = $1
		ORDER BY created_at, id
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*Permission
	for rows.Next() {
		var perm Permission
		var kind string
		var contributorID sql.NullString
		var access int
		if err := rows.Scan(&perm.ID, &kind, &contributorID, &access); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perm.Contributor = ContributorRef{Kind: ContributorKind(kind), ID: contributorID.String}
		perm.Access = AccessLevel(access)
		permissions = append(permissions, &perm)
	}
	return permissions, rows.Err()
}

// SavePolicy persists the policy and its permission changes in one transaction
func (s *SimplePolicyStore) SavePolicy(ctx context.Context, policy *Policy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := SavePolicyTx(ctx, tx, policy); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy: %w", err)
	}
	policy.ClearChanges()
	return nil
}

// Execer covers *sql.Tx and *sql.DB for writes that must join an enclosing
// transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SavePolicyTx writes the policy row and permission changes using the given
// transaction. It does not clear the in-memory change flags; the caller
// does that after a successful commit.
func SavePolicyTx(ctx context.Context, tx Execer, policy *Policy) error {
	var scope interface{}
	if policy.Scope != ScopeNone {
		scope = string(policy.Scope)
	}
	now := time.Now()

	_, err := tx.ExecContext(ctx, `
		UPDATE policies
		SET access_type = $2, sharing_scope = $3, updated_at = $4
		WHERE id = $1
	`, policy.ID, int(policy.Access), scope, now)
	if err != nil {
		return fmt.Errorf("failed to update policy: %w", err)
	}

	for _, perm := range policy.Permissions {
		var contributorID interface{}
		if perm.Contributor.ID != "" {
			contributorID = perm.Contributor.ID
		}
		if perm.NewRecord() {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO permissions (id, policy_id, contributor_type, contributor_id, access_type, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, perm.ID, policy.ID, string(perm.Contributor.Kind), contributorID, int(perm.Access), now, now)
			if err != nil {
				return fmt.Errorf("failed to insert permission: %w", err)
			}
		} else if perm.Changed() {
			_, err = tx.ExecContext(ctx, `
				UPDATE permissions
				SET access_type = $2, updated_at = $3
				WHERE id = $1
			`, perm.ID, int(perm.Access), now)
			if err != nil {
				return fmt.Errorf("failed to update permission: %w", err)
			}
		}
	}
	return nil
}

// InsertPolicyTx creates the policy row and all its permissions. Used when
// a resource is created inside a larger transaction.
func InsertPolicyTx(ctx context.Context, tx Execer, policy *Policy) error {
	var scope interface{}
	if policy.Scope != ScopeNone {
		scope = string(policy.Scope)
	}
	now := time.Now()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO policies (id, access_type, sharing_scope, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, policy.ID, int(policy.Access), scope, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	for _, perm := range policy.Permissions {
		var contributorID interface{}
		if perm.Contributor.ID != "" {
			contributorID = perm.Contributor.ID
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO permissions (id, policy_id, contributor_type, contributor_id, access_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, perm.ID, policy.ID, string(perm.Contributor.Kind), contributorID, int(perm.Access), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert permission: %w", err)
		}
	}
	return nil
}

// DeletePermission removes a single permission row
func (s *SimplePolicyStore) DeletePermission(ctx context.Context, permissionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// SimpleResourceStore - SQL implementation of ResourceStore
// ============================================================================

// SimpleResourceStore implements ResourceStore using SQL
type SimpleResourceStore struct {
	db       *sql.DB
	policies *SimplePolicyStore
}

// NewSimpleResourceStore creates a new SimpleResourceStore
func NewSimpleResourceStore(db *sql.DB) *SimpleResourceStore {
	return &SimpleResourceStore{db: db, policies: NewSimplePolicyStore(db)}
}

// Ensure SimpleResourceStore implements ResourceStore
var _ ResourceStore = (*SimpleResourceStore)(nil)

// GetResource retrieves a resource with its policy and project associations
func (s *SimpleResourceStore) GetResource(ctx context.Context, resourceType, id string) (*Resource, error) {
	var res Resource
	var contributor sql.NullString
	var policyID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, title, COALESCE(description, ''), contributor_id, policy_id
		FROM resources
		WHERE type = $1 AND id = $2
	`, resourceType, id).Scan(&res.ID, &res.Type, &res.Title, &res.Description, &contributor, &policyID)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	res.Contributor = contributor.String

	if err := s.hydrate(ctx, &res, policyID); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *SimpleResourceStore) hydrate(ctx context.Context, res *Resource, policyID string) error {
	policy, err := s.policies.GetPolicy(ctx, policyID)
	if err != nil {
		return fmt.Errorf("failed to load policy for %s %s: %w", res.Type, res.ID, err)
	}
	res.Pol = policy

	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id FROM resource_projects WHERE resource_id = $1 ORDER BY project_id
	`, res.ID)
	if err != nil {
		return fmt.Errorf("failed to load resource projects: %w", err)
	}
	defer rows.Close()

	res.Projects = make([]string, 0)
	for rows.Next() {
		var projectID string
		if err := rows.Scan(&projectID); err != nil {
			return fmt.Errorf("failed to scan project id: %w", err)
		}
		res.Projects = append(res.Projects, projectID)
	}
	return rows.Err()
}

// ListResources returns all resources with policies and projects loaded
func (s *SimpleResourceStore) ListResources(ctx context.Context) ([]*Resource, error) {
	return s.list(ctx, `
		SELECT id, type, title, COALESCE(description, ''), contributor_id, policy_id
		FROM resources
		ORDER BY created_at, id
	`)
}

// ListLegacyScoped returns resources whose policy still has the ALL_USERS scope
func (s *SimpleResourceStore) ListLegacyScoped(ctx context.Context) ([]*Resource, error) {
	return s.list(ctx, `
		SELECT r.id, r.type, r.title, COALESCE(r.description, ''), r.contributor_id, r.policy_id
		FROM resources r
		JOIN policies p ON p.id = r.policy_id
		WHERE p.sharing_scope = 'ALL_USERS'
		ORDER BY r.created_at, r.id
	`)
}

func (s *SimpleResourceStore) list(ctx context.Context, query string) ([]*Resource, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	type row struct {
		res      *Resource
		policyID string
	}
	var scanned []row
	for rows.Next() {
		var res Resource
		var contributor sql.NullString
		var policyID string
		if err := rows.Scan(&res.ID, &res.Type, &res.Title, &res.Description, &contributor, &policyID); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		res.Contributor = contributor.String
		scanned = append(scanned, row{res: &res, policyID: policyID})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resources := make([]*Resource, 0, len(scanned))
	for _, r := range scanned {
		if err := s.hydrate(ctx, r.res, r.policyID); err != nil {
			return nil, err
		}
		resources = append(resources, r.res)
	}
	return resources, nil
}

// ============================================================================
// SimpleDirectory - SQL implementation of Directory
// ============================================================================

// SimpleDirectory resolves actor identities from the people and membership
// tables.
type SimpleDirectory struct {
	db *sql.DB
}

// NewSimpleDirectory creates a new SimpleDirectory
func NewSimpleDirectory(db *sql.DB) *SimpleDirectory {
	return &SimpleDirectory{db: db}
}

// Ensure SimpleDirectory implements Directory and PersonLister
var (
	_ Directory    = (*SimpleDirectory)(nil)
	_ PersonLister = (*SimpleDirectory)(nil)
)

// IdentityFor returns the person's identity set: themselves, their current
// projects (memberships not marked left) and those projects' programmes.
func (d *SimpleDirectory) IdentityFor(ctx context.Context, personID string) (IdentitySet, error) {
	identity := IdentitySet{PersonID: personID}

	rows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT p.id, p.programme_id
		FROM projects p
		JOIN group_memberships gm ON gm.project_id = p.id
		WHERE gm.person_id = $1 AND gm.has_left = false
		ORDER BY p.id
	`, personID)
	if err != nil {
		return identity, fmt.Errorf("failed to load person projects: %w", err)
	}
	defer rows.Close()

	programmes := make(map[string]bool)
	for rows.Next() {
		var projectID string
		var programmeID sql.NullString
		if err := rows.Scan(&projectID, &programmeID); err != nil {
			return identity, fmt.Errorf("failed to scan project: %w", err)
		}
		identity.ProjectIDs = append(identity.ProjectIDs, projectID)
		if programmeID.Valid && !programmes[programmeID.String] {
			programmes[programmeID.String] = true
			identity.ProgrammeIDs = append(identity.ProgrammeIDs, programmeID.String)
		}
	}
	return identity, rows.Err()
}

// IsAdmin reports whether the person has the application admin flag
func (d *SimpleDirectory) IsAdmin(ctx context.Context, personID string) (bool, error) {
	var isAdmin bool
	err := d.db.QueryRowContext(ctx, `SELECT is_admin FROM people WHERE id = $1`, personID).Scan(&isAdmin)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("failed to check admin flag: %w", err)
	}
	return isAdmin, nil
}

// ListPersonIDs returns all registered person IDs
func (d *SimpleDirectory) ListPersonIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id FROM people ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan person id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// SimpleDefaultPolicyStore - cleanup of legacy project default policies
// ============================================================================

// SimpleDefaultPolicyStore implements DefaultPolicyStore using SQL
type SimpleDefaultPolicyStore struct {
	db *sql.DB
}

// NewSimpleDefaultPolicyStore creates a new SimpleDefaultPolicyStore
func NewSimpleDefaultPolicyStore(db *sql.DB) *SimpleDefaultPolicyStore {
	return &SimpleDefaultPolicyStore{db: db}
}

// Ensure SimpleDefaultPolicyStore implements DefaultPolicyStore
var _ DefaultPolicyStore = (*SimpleDefaultPolicyStore)(nil)

// LegacyDefaultPolicyIDs finds project default policies still scoped ALL_USERS
func (s *SimpleDefaultPolicyStore) LegacyDefaultPolicyIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.id
		FROM policies p
		JOIN projects pr ON pr.default_policy_id = p.id
		WHERE p.sharing_scope = 'ALL_USERS'
		ORDER BY p.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to find legacy default policies: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan policy id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ProjectsUsingDefaultPolicy returns projects actively using the given policy
func (s *SimpleDefaultPolicyStore) ProjectsUsingDefaultPolicy(ctx context.Context, policyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM projects
		WHERE default_policy_id = $1 AND use_default_policy = true
		ORDER BY id
	`, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to find projects using policy: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DisableUseDefaultPolicy switches off the use_default_policy flag
func (s *SimpleDefaultPolicyStore) DisableUseDefaultPolicy(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET use_default_policy = false, updated_at = $2 WHERE id = $1
	`, projectID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to disable default policy: %w", err)
	}
	return nil
}

// DeletePolicy removes a policy and its permissions (cascade)
func (s *SimpleDefaultPolicyStore) DeletePolicy(ctx context.Context, policyID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = $1`, policyID)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	return nil
}

// ============================================================================
// Factory function for convenience
// ============================================================================

// NewSimpleBackend creates all simple implementations at once
// Returns: PolicyStore, ResourceStore, Directory
func NewSimpleBackend(db *sql.DB) (PolicyStore, ResourceStore, *SimpleDirectory) {
	return NewSimplePolicyStore(db),
		NewSimpleResourceStore(db),
		NewSimpleDirectory(db)
}
