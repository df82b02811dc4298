package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/lookup"
)

// SharingService owns the write boundary for resources and their sharing
// settings. Every authorization-relevant write enqueues the matching
// invalidation entry inside the same transaction, so a committed change is
// never missed by the lookup worker. Metadata-only writes enqueue nothing.
type SharingService struct {
	db        *sql.DB
	queue     *lookup.UpdateQueue
	resources authz.ResourceStore
}

// NewSharingService creates a new SharingService
func NewSharingService(db *sql.DB, queue *lookup.UpdateQueue) *SharingService {
	return &SharingService{
		db:        db,
		queue:     queue,
		resources: authz.NewSimpleResourceStore(db),
	}
}

// CreateResourceInput represents input for creating a resource
type CreateResourceInput struct {
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	ContributorID string            `json:"contributor_id"`
	ProjectIDs    []string          `json:"project_ids"`
	AccessType    authz.AccessLevel `json:"access_type"`
}

// CreateResource creates a resource together with its policy and enqueues
// the initial lookup computation.
func (s *SharingService) CreateResource(ctx context.Context, input CreateResourceInput) (*authz.Resource, error) {
	if input.Type == "" || input.Title == "" {
		return nil, authz.ErrInvalidInput
	}
	if !input.AccessType.Valid() {
		return nil, fmt.Errorf("%w: invalid access type", authz.ErrInvalidInput)
	}

	policy := authz.NewPolicy(input.AccessType)
	res := &authz.Resource{
		Type:        input.Type,
		ID:          uuid.New().String(),
		Title:       input.Title,
		Description: input.Description,
		Contributor: input.ContributorID,
		Projects:    input.ProjectIDs,
		Pol:         policy,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := authz.InsertPolicyTx(ctx, tx, policy); err != nil {
		return nil, err
	}

	now := time.Now()
	var contributor interface{}
	if res.Contributor != "" {
		contributor = res.Contributor
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resources (id, type, title, description, contributor_id, policy_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, res.ID, res.Type, res.Title, res.Description, contributor, policy.ID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	for _, projectID := range res.Projects {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO resource_projects (resource_id, project_id) VALUES ($1, $2)
		`, res.ID, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to link resource project: %w", err)
		}
	}

	if err := s.queue.EnqueueTx(ctx, tx, lookup.ResourceItem(res.Type, res.ID), false); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resource: %w", err)
	}
	policy.ClearChanges()
	return res, nil
}

// GetResource retrieves a resource with policy and projects loaded
func (s *SharingService) GetResource(ctx context.Context, resourceType, id string) (*authz.Resource, error) {
	return s.resources.GetResource(ctx, resourceType, id)
}

// UpdateMetadataInput represents input for metadata-only edits
type UpdateMetadataInput struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateMetadata edits non-authorization fields. Deliberately does not
// touch the lookup queue: titles and descriptions don't affect access.
func (s *SharingService) UpdateMetadata(ctx context.Context, resourceType, id string, input UpdateMetadataInput) error {
	res, err := s.resources.GetResource(ctx, resourceType, id)
	if err != nil {
		return err
	}
	if input.Title != nil {
		res.Title = *input.Title
	}
	if input.Description != nil {
		res.Description = *input.Description
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE resources SET title = $3, description = $4, updated_at = $5
		WHERE type = $1 AND id = $2
	`, resourceType, id, res.Title, res.Description, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update resource: %w", err)
	}
	return nil
}

// UpdatePolicyAccess changes the policy's default access level and
// enqueues the resource for recompute in the same transaction.
func (s *SharingService) UpdatePolicyAccess(ctx context.Context, resourceType, id string, access authz.AccessLevel) (*authz.Resource, error) {
	if !access.Valid() {
		return nil, fmt.Errorf("%w: invalid access type", authz.ErrInvalidInput)
	}
	res, err := s.resources.GetResource(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	res.Pol.SetAccess(access)
	if !res.Pol.AccessChanged() {
		return res, nil
	}
	if err := s.savePolicyAndEnqueue(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// GrantPermission ensures the contributor has at least the given access on
// the resource. Existing grants are only ever elevated.
func (s *SharingService) GrantPermission(ctx context.Context, resourceType, id string, contributor authz.ContributorRef, level authz.AccessLevel) (*authz.Resource, error) {
	if !contributor.Valid() {
		return nil, fmt.Errorf("%w: invalid contributor", authz.ErrInvalidInput)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: invalid access type", authz.ErrInvalidInput)
	}
	res, err := s.resources.GetResource(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}
	res.Pol.Grant(contributor, level)
	if err := s.savePolicyAndEnqueue(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// RevokePermission removes every permission targeting the contributor.
func (s *SharingService) RevokePermission(ctx context.Context, resourceType, id string, contributor authz.ContributorRef) (*authz.Resource, error) {
	res, err := s.resources.GetResource(ctx, resourceType, id)
	if err != nil {
		return nil, err
	}

	removed := res.Pol.PermissionsFor(contributor)
	if len(removed) == 0 {
		return nil, authz.ErrNotFound
	}
	res.Pol.Revoke(contributor)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, perm := range removed {
		if _, err := tx.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, perm.ID); err != nil {
			return nil, fmt.Errorf("failed to delete permission: %w", err)
		}
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.ResourceItem(res.Type, res.ID), false); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit revoke: %w", err)
	}
	return res, nil
}

// ResolveLegacyScope rewrites one ALL_USERS policy through the resolver and
// persists the result together with its queue entry. Save and enqueue share
// one transaction: a committed scope clear without a pending recompute would
// drop the resource from the migration work list while its lookup rows stay
// stale.
func (s *SharingService) ResolveLegacyScope(ctx context.Context, resolver *authz.AllUsersSharingScopeResolver, res *authz.Resource) error {
	resolver.Resolve(res)
	return s.savePolicyAndEnqueue(ctx, res)
}

func (s *SharingService) savePolicyAndEnqueue(ctx context.Context, res *authz.Resource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := authz.SavePolicyTx(ctx, tx, res.Pol); err != nil {
		return err
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.ResourceItem(res.Type, res.ID), false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy change: %w", err)
	}
	res.Pol.ClearChanges()
	return nil
}
