package authz

import (
	"context"
)

// PolicyStore handles persistence of policies and their permissions.
// Purely a data access layer - no authorization logic.
type PolicyStore interface {
	// GetPolicy retrieves a policy with its permissions
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// SavePolicy persists the policy's current state: updates the policy
	// row, inserts new permissions and updates changed ones, then clears
	// the in-memory change flags
	SavePolicy(ctx context.Context, policy *Policy) error

	// DeletePermission removes a single permission row
	DeletePermission(ctx context.Context, permissionID string) error
}

// ResourceStore loads resources together with their policy and project
// associations, ready for evaluation or migration.
type ResourceStore interface {
	// GetResource retrieves a resource by type and ID
	GetResource(ctx context.Context, resourceType, id string) (*Resource, error)

	// ListResources returns all resources (used by the lookup recompute)
	ListResources(ctx context.Context) ([]*Resource, error)

	// ListLegacyScoped returns resources whose policy still carries the
	// ALL_USERS sharing scope (the migration work list)
	ListLegacyScoped(ctx context.Context) ([]*Resource, error)
}

// PersonLister enumerates actor IDs for full cache recomputes.
type PersonLister interface {
	ListPersonIDs(ctx context.Context) ([]string, error)
}
