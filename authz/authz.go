// Package authz implements the sharing-policy authorization model:
// access levels, per-contributor permissions, effective-access evaluation
// and the migration of legacy sharing scopes.
//
// The package follows a read/write split:
// - Evaluator answers "what access does this actor have?" (read side)
// - Policy mutations (Grant/Revoke) and the stores change sharing settings (write side)
// - AllUsersSharingScopeResolver is a one-off migration over stored policies
package authz

import "errors"

// Common errors
var (
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoPolicy indicates a resource reached the evaluator without a policy.
	// That is a caller bug, never a deny.
	ErrNoPolicy = errors.New("resource has no policy")
)

// AccessLevel is a point on the ordered access scale. NoAccess is also
// referred to as "private" in sharing UIs.
type AccessLevel int

const (
	NoAccess   AccessLevel = 0
	Visible    AccessLevel = 1
	Accessible AccessLevel = 2
	Editing    AccessLevel = 3
	Managing   AccessLevel = 4
)

// Valid reports whether l is one of the five defined levels.
func (l AccessLevel) Valid() bool {
	return l >= NoAccess && l <= Managing
}

// AtLeast reports whether l meets or exceeds the given threshold.
func (l AccessLevel) AtLeast(threshold AccessLevel) bool {
	return l >= threshold
}

func (l AccessLevel) String() string {
	switch l {
	case NoAccess:
		return "no_access"
	case Visible:
		return "visible"
	case Accessible:
		return "accessible"
	case Editing:
		return "editing"
	case Managing:
		return "managing"
	default:
		return "invalid"
	}
}

// MaxAccess returns the higher of two access levels. Elevation logic uses
// this everywhere: combining grants never downgrades existing access.
func MaxAccess(a, b AccessLevel) AccessLevel {
	if a >= b {
		return a
	}
	return b
}

// Category is one of the five permission categories application actions
// translate to. CategoryNone means "not covered by generic authorization".
type Category string

const (
	CategoryNone     Category = ""
	CategoryView     Category = "view"
	CategoryDownload Category = "download"
	CategoryEdit     Category = "edit"
	CategoryDelete   Category = "delete"
	CategoryManage   Category = "manage"
)

// RequiredAccess returns the minimum access level that permits actions in
// this category. Delete and manage are independent categories but share the
// same threshold; both sit above edit.
func (c Category) RequiredAccess() (AccessLevel, bool) {
	switch c {
	case CategoryView:
		return Visible, true
	case CategoryDownload:
		return Accessible, true
	case CategoryEdit:
		return Editing, true
	case CategoryDelete, CategoryManage:
		return Managing, true
	default:
		return NoAccess, false
	}
}
