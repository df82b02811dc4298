package db

import "time"

// ===========================
// PEOPLE & MEMBERSHIP MODELS
// ===========================

// Person represents a registered person (the only actor identity)
type Person struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Never serialized
	PasswordHash string `json:"-"`
}

// Programme groups related projects
type Programme struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project is the unit resources and people are associated with
type Project struct {
	ID               string    `json:"id"`
	ProgrammeID      string    `json:"programme_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	DefaultPolicyID  string    `json:"default_policy_id,omitempty"`
	UseDefaultPolicy bool      `json:"use_default_policy"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GroupMembership links a person to a project. HasLeft marks a former
// member whose row is kept for history but no longer grants identity.
type GroupMembership struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	ProjectID string    `json:"project_id"`
	HasLeft   bool      `json:"has_left"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AuthLookupEntry is one row of the denormalized authorization cache.
// An empty PersonID is the anonymous/public entry.
type AuthLookupEntry struct {
	PersonID     string    `json:"person_id,omitempty"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Access       int       `json:"access"`
	UpdatedAt    time.Time `json:"updated_at"`
}
