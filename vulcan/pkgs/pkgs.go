// Package pkgs holds the strong string types used by package definitions.
// They exist for the purpose of strong typing and cannot do anything special.
package pkgs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type Name string

type Version string

// ID is the identity of one package at one version, as used for DAG vertex
// hashing and artifact directory naming.
func ID(name Name, version Version) string {
	return fmt.Sprintf("%s-%s", name, version)
}

// EnvHash returns a stable hash over an environment map. Two jobs with the
// same package and the same environment hash are considered equivalent when
// looking up replacement artifacts.
func EnvHash(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, env[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Dependency is one entry of a package dependency list: a package name,
// optionally followed by a version constraint ("openssl", "openssl =3.0.1").
type Dependency string

func (d Dependency) Parse() (Name, Constraint, error) {
	fields := strings.Fields(string(d))
	switch len(fields) {
	case 1:
		return Name(fields[0]), Constraint{Kind: ConstraintAny}, nil
	case 2:
		c, err := ParseConstraint(fields[1])
		if err != nil {
			return "", Constraint{}, err
		}
		return Name(fields[0]), c, nil
	default:
		return "", Constraint{}, fmt.Errorf("invalid dependency %q (expected \"name\" or \"name constraint\")", string(d))
	}
}
