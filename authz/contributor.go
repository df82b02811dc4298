package authz

import "fmt"

// ContributorKind discriminates the permission target variants.
type ContributorKind string

const (
	KindPerson    ContributorKind = "person"
	KindProject   ContributorKind = "project"
	KindProgramme ContributorKind = "programme"
	KindEveryone  ContributorKind = "everyone"
)

// ContributorRef identifies who or what a permission applies to: a person,
// a project, a programme, or everyone. This is the permission target, not
// to be confused with a resource's contributor (its creating person).
type ContributorRef struct {
	Kind ContributorKind `json:"kind"`
	ID   string          `json:"id,omitempty"`
}

func PersonRef(id string) ContributorRef    { return ContributorRef{Kind: KindPerson, ID: id} }
func ProjectRef(id string) ContributorRef   { return ContributorRef{Kind: KindProject, ID: id} }
func ProgrammeRef(id string) ContributorRef { return ContributorRef{Kind: KindProgramme, ID: id} }
func EveryoneRef() ContributorRef           { return ContributorRef{Kind: KindEveryone} }

// Valid reports whether the ref is a well-formed variant. Everyone carries
// no ID; all other kinds require one.
func (c ContributorRef) Valid() bool {
	switch c.Kind {
	case KindEveryone:
		return c.ID == ""
	case KindPerson, KindProject, KindProgramme:
		return c.ID != ""
	default:
		return false
	}
}

func (c ContributorRef) String() string {
	if c.Kind == KindEveryone {
		return "everyone"
	}
	return fmt.Sprintf("%s:%s", c.Kind, c.ID)
}

// IdentitySet is the set of contributor identities an actor holds when a
// policy is queried: themselves, their current projects and programmes.
// Everyone is an implicit member of every identity set. The zero value is
// the anonymous identity (everyone only).
type IdentitySet struct {
	PersonID     string
	ProjectIDs   []string
	ProgrammeIDs []string
}

// Contains reports whether the given permission target matches this actor.
func (s IdentitySet) Contains(c ContributorRef) bool {
	switch c.Kind {
	case KindEveryone:
		return true
	case KindPerson:
		return s.PersonID != "" && c.ID == s.PersonID
	case KindProject:
		for _, id := range s.ProjectIDs {
			if id == c.ID {
				return true
			}
		}
	case KindProgramme:
		for _, id := range s.ProgrammeIDs {
			if id == c.ID {
				return true
			}
		}
	}
	return false
}
