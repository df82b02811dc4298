package authz

import (
	"context"
	"fmt"
)

// Authorizable is the capability any resource type exposes to the
// authorization core: a policy, a contributing person and associated
// projects. The evaluator depends only on this interface, never on
// concrete asset types.
type Authorizable interface {
	// AuthType is the resource type name used in lookup and audit records.
	AuthType() string
	AuthID() string
	Policy() *Policy
	// ContributorID is the creating person's ID, empty if unknown.
	ContributorID() string
	ProjectIDs() []string
}

// Resource is the plain asset record used by the stores and services. Any
// other type implementing Authorizable works with the evaluator equally.
type Resource struct {
	Type        string   `json:"type"`
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Contributor string   `json:"contributor_id,omitempty"`
	Projects    []string `json:"project_ids"`
	Pol         *Policy  `json:"-"`
}

var _ Authorizable = (*Resource)(nil)

func (r *Resource) AuthType() string      { return r.Type }
func (r *Resource) AuthID() string        { return r.ID }
func (r *Resource) Policy() *Policy       { return r.Pol }
func (r *Resource) ContributorID() string { return r.Contributor }
func (r *Resource) ProjectIDs() []string  { return r.Projects }

// Directory resolves an actor's identity set and admin flag. Implemented
// by SimpleDirectory over the people/membership tables.
type Directory interface {
	IdentityFor(ctx context.Context, personID string) (IdentitySet, error)
	IsAdmin(ctx context.Context, personID string) (bool, error)
}

// ShortCircuitFunc is the extension point for owner/admin precedence rules.
// It runs before the policy graph is consulted; returning ok=true makes the
// returned level the result unconditionally. Exact owner/admin precedence
// is resource-specific, so callers may install their own rules.
type ShortCircuitFunc func(actorID string, isAdmin bool, resource Authorizable) (AccessLevel, bool)

// DefaultShortCircuit grants Managing to the resource's contributor and to
// application admins.
func DefaultShortCircuit(actorID string, isAdmin bool, resource Authorizable) (AccessLevel, bool) {
	if isAdmin {
		return Managing, true
	}
	if actorID != "" && actorID == resource.ContributorID() {
		return Managing, true
	}
	return NoAccess, false
}

// CacheReader is the read side of the denormalized auth lookup cache.
// Implemented by lookup.Cache.
type CacheReader interface {
	CachedAccess(ctx context.Context, personID, resourceType, resourceID string) (AccessLevel, bool, error)
}

// Evaluator computes the effective access an actor has on a resource.
type Evaluator struct {
	dir          Directory
	cache        CacheReader
	shortCircuit ShortCircuitFunc
}

// NewEvaluator creates an evaluator with the default owner/admin short-circuit.
func NewEvaluator(dir Directory) *Evaluator {
	return &Evaluator{dir: dir, shortCircuit: DefaultShortCircuit}
}

// SetShortCircuit replaces the owner/admin precedence rules.
func (e *Evaluator) SetShortCircuit(f ShortCircuitFunc) {
	e.shortCircuit = f
}

// SetCache installs a lookup cache consulted by FastEvaluate.
func (e *Evaluator) SetCache(c CacheReader) {
	e.cache = c
}

// Evaluate returns the effective access level actorID has on the resource.
// An empty actorID is the anonymous actor: it holds only the everyone
// identity and the policy default, with no special-casing beyond that.
// A resource without a policy fails loudly with ErrNoPolicy.
func (e *Evaluator) Evaluate(ctx context.Context, actorID string, resource Authorizable) (AccessLevel, error) {
	policy := resource.Policy()
	if policy == nil {
		return NoAccess, fmt.Errorf("%w: %s %s", ErrNoPolicy, resource.AuthType(), resource.AuthID())
	}

	identity := IdentitySet{}
	if actorID != "" {
		isAdmin, err := e.dir.IsAdmin(ctx, actorID)
		if err != nil {
			return NoAccess, fmt.Errorf("failed to check admin flag: %w", err)
		}
		if level, ok := e.shortCircuit(actorID, isAdmin, resource); ok {
			return level, nil
		}
		identity, err = e.dir.IdentityFor(ctx, actorID)
		if err != nil {
			return NoAccess, fmt.Errorf("failed to resolve identity: %w", err)
		}
	}

	base := policy.EffectiveDefault()
	granted := policy.GrantedAccess(identity)
	return MaxAccess(base, granted), nil
}

// FastEvaluate consults the lookup cache first and falls back to the
// authoritative Evaluate on a miss. Cached reads may be stale until the
// next queue drain; callers needing strict consistency use Evaluate.
func (e *Evaluator) FastEvaluate(ctx context.Context, actorID string, resource Authorizable) (AccessLevel, error) {
	if e.cache != nil {
		if level, ok, err := e.cache.CachedAccess(ctx, actorID, resource.AuthType(), resource.AuthID()); err == nil && ok {
			return level, nil
		}
	}
	return e.Evaluate(ctx, actorID, resource)
}

// Permits reports whether the actor may perform actions of the given
// category on the resource. CategoryNone is a caller error: such actions
// are outside generic authorization.
func (e *Evaluator) Permits(ctx context.Context, actorID string, resource Authorizable, category Category) (bool, error) {
	required, ok := category.RequiredAccess()
	if !ok {
		return false, fmt.Errorf("%w: action category not covered by authorization", ErrInvalidInput)
	}
	level, err := e.Evaluate(ctx, actorID, resource)
	if err != nil {
		return false, err
	}
	return level.AtLeast(required), nil
}
