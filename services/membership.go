package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/db"
	"github.com/labshare/assethub/lookup"
)

// ErrInvalidCredentials is returned when email/password verification fails
var ErrInvalidCredentials = errors.New("invalid credentials")

// MembershipService owns people and their project memberships. Writes that
// change what a person can see (registration, admin flag, membership rows)
// enqueue that person for lookup recompute in the same transaction;
// profile and credential edits do not.
type MembershipService struct {
	db    *sql.DB
	queue *lookup.UpdateQueue
}

// NewMembershipService creates a new MembershipService
func NewMembershipService(database *sql.DB, queue *lookup.UpdateQueue) *MembershipService {
	return &MembershipService{db: database, queue: queue}
}

// RegisterInput represents input for registering a person
type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Register creates a person and enqueues their initial lookup rows. A new
// person may already be reachable through public policies, so the recompute
// cannot wait for their first membership.
func (s *MembershipService) Register(ctx context.Context, input RegisterInput) (*db.Person, error) {
	if input.Email == "" || input.Password == "" {
		return nil, authz.ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	person := &db.Person{
		ID:           uuid.New().String(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        input.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO people (id, first_name, last_name, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)
	`, person.ID, person.FirstName, person.LastName, person.Email, person.PasswordHash, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}

	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(person.ID), false); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit registration: %w", err)
	}
	return person, nil
}

// VerifyCredentials checks an email/password pair and returns the person
func (s *MembershipService) VerifyCredentials(ctx context.Context, email, password string) (*db.Person, error) {
	person, err := s.getPersonByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(person.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return person, nil
}

// UpdatePassword rehashes and stores a new password. Credentials don't
// affect authorization, so nothing is enqueued.
func (s *MembershipService) UpdatePassword(ctx context.Context, personID, password string) error {
	if password == "" {
		return authz.ErrInvalidInput
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE people SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, personID, string(hash), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(result)
}

// UpdateProfileInput represents input for profile edits
type UpdateProfileInput struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// UpdateProfile edits name fields only. Nothing is enqueued.
func (s *MembershipService) UpdateProfile(ctx context.Context, personID string, input UpdateProfileInput) (*db.Person, error) {
	person, err := s.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	if input.FirstName != nil {
		person.FirstName = *input.FirstName
	}
	if input.LastName != nil {
		person.LastName = *input.LastName
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE people SET first_name = $2, last_name = $3, updated_at = $4 WHERE id = $1
	`, personID, person.FirstName, person.LastName, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return person, nil
}

// SetAdmin toggles the admin flag. The flag changes what the person can do
// everywhere, so an actual change enqueues them; a no-op write does not.
func (s *MembershipService) SetAdmin(ctx context.Context, personID string, isAdmin bool) error {
	person, err := s.GetPerson(ctx, personID)
	if err != nil {
		return err
	}
	if person.IsAdmin == isAdmin {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE people SET is_admin = $2, updated_at = $3 WHERE id = $1
	`, personID, isAdmin, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update admin flag: %w", err)
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(personID), false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit admin change: %w", err)
	}
	return nil
}

// AddToProject creates a membership and enqueues the person: joining a
// project can grant access to everything shared with it.
func (s *MembershipService) AddToProject(ctx context.Context, personID, projectID string) (*db.GroupMembership, error) {
	if personID == "" || projectID == "" {
		return nil, authz.ErrInvalidInput
	}
	now := time.Now()
	membership := &db.GroupMembership{
		ID:        uuid.New().String(),
		PersonID:  personID,
		ProjectID: projectID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO group_memberships (id, person_id, project_id, has_left, created_at, updated_at)
		VALUES ($1, $2, $3, false, $4, $5)
	`, membership.ID, personID, projectID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(personID), false); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit membership: %w", err)
	}
	return membership, nil
}

// ReassignMembership moves a membership row to another person. Both people
// change identity, so both get enqueued in the same transaction.
func (s *MembershipService) ReassignMembership(ctx context.Context, membershipID, newPersonID string) error {
	if newPersonID == "" {
		return authz.ErrInvalidInput
	}
	membership, err := s.getMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.PersonID == newPersonID {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE group_memberships SET person_id = $2, updated_at = $3 WHERE id = $1
	`, membershipID, newPersonID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reassign membership: %w", err)
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(newPersonID), false); err != nil {
		return err
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(membership.PersonID), false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reassignment: %w", err)
	}
	return nil
}

// MarkLeft records that the person left the project. The row is kept for
// history; the person loses the identity it granted, so they get enqueued.
func (s *MembershipService) MarkLeft(ctx context.Context, membershipID string) error {
	membership, err := s.getMembership(ctx, membershipID)
	if err != nil {
		return err
	}
	if membership.HasLeft {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE group_memberships SET has_left = true, updated_at = $2 WHERE id = $1
	`, membershipID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark membership left: %w", err)
	}
	if err := s.queue.EnqueueTx(ctx, tx, lookup.PersonItem(membership.PersonID), false); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit membership change: %w", err)
	}
	return nil
}

// GetPerson retrieves a person by ID
func (s *MembershipService) GetPerson(ctx context.Context, personID string) (*db.Person, error) {
	person := &db.Person{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, password_hash, is_admin, created_at, updated_at
		FROM people WHERE id = $1
	`, personID).Scan(
		&person.ID, &person.FirstName, &person.LastName, &person.Email,
		&person.PasswordHash, &person.IsAdmin, &person.CreatedAt, &person.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, authz.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}

func (s *MembershipService) getPersonByEmail(ctx context.Context, email string) (*db.Person, error) {
	person := &db.Person{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, password_hash, is_admin, created_at, updated_at
		FROM people WHERE email = $1
	`, email).Scan(
		&person.ID, &person.FirstName, &person.LastName, &person.Email,
		&person.PasswordHash, &person.IsAdmin, &person.CreatedAt, &person.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, authz.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get person: %w", err)
	}
	return person, nil
}

func (s *MembershipService) getMembership(ctx context.Context, membershipID string) (*db.GroupMembership, error) {
	membership := &db.GroupMembership{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, person_id, project_id, has_left, created_at, updated_at
		FROM group_memberships WHERE id = $1
	`, membershipID).Scan(
		&membership.ID, &membership.PersonID, &membership.ProjectID,
		&membership.HasLeft, &membership.CreatedAt, &membership.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, authz.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return membership, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return authz.ErrNotFound
	}
	return nil
}
