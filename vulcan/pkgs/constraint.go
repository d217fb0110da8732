package pkgs

import (
	"fmt"
	"strings"
)

type ConstraintKind int

const (
	ConstraintAny ConstraintKind = iota
	ConstraintLatest
	ConstraintExact
)

// Constraint expresses a package version constraint.
type Constraint struct {
	Kind    ConstraintKind
	Version Version
}

// ParseConstraint parses a constraint string:
//
//	""        any version
//	"latest"  the highest known version (undecided per package)
//	"=1.2.3"  exactly 1.2.3
//	"1.2.3"   shorthand for =1.2.3
func ParseConstraint(s string) (Constraint, error) {
	switch {
	case s == "":
		return Constraint{Kind: ConstraintAny}, nil
	case s == "latest":
		return Constraint{Kind: ConstraintLatest}, nil
	case strings.HasPrefix(s, "="):
		v := strings.TrimPrefix(s, "=")
		if v == "" {
			return Constraint{}, fmt.Errorf("invalid version constraint %q", s)
		}
		return Constraint{Kind: ConstraintExact, Version: Version(v)}, nil
	default:
		return Constraint{Kind: ConstraintExact, Version: Version(s)}, nil
	}
}

// Match is a three-valued constraint matching result. "latest" cannot be
// decided against a single version, only against the whole repository.
type Match int

const (
	MatchFalse Match = iota
	MatchTrue
	MatchUndecided
)

func (m Match) IsTrue() bool      { return m == MatchTrue }
func (m Match) IsFalse() bool     { return m == MatchFalse }
func (m Match) IsUndecided() bool { return m == MatchUndecided }

func matchFromBool(b bool) Match {
	if b {
		return MatchTrue
	}
	return MatchFalse
}

func (c Constraint) Matches(v Version) Match {
	switch c.Kind {
	case ConstraintAny:
		return MatchTrue
	case ConstraintLatest:
		return MatchUndecided
	case ConstraintExact:
		return matchFromBool(c.Version == v)
	default:
		return MatchFalse
	}
}

func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintAny:
		return "*"
	case ConstraintLatest:
		return "latest"
	case ConstraintExact:
		return "=" + string(c.Version)
	default:
		return "invalid"
	}
}
