// Package job defines the unit of work of one submit: one package build.
package job

import (
	"github.com/google/uuid"

	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

// Spec is one node of the submit's job graph: a package build plus the job
// UUIDs it depends on.
type Spec struct {
	UUID         uuid.UUID
	Package      *schema.Package
	Dependencies []uuid.UUID
}

// Runnable is a Spec that is ready to execute: the script is assembled, the
// environment merged, sources resolved and dependency artifacts collected.
type Runnable struct {
	Spec

	Script string
	Env    map[string]string

	// EnvHash identifies the non-builtin environment, for replacement
	// artifact lookups.
	EnvHash string

	// SourcePaths are the cached source files to place into the job
	// workspace.
	SourcePaths []string

	// DependencyArtifacts are staged into the workspace before the script
	// runs.
	DependencyArtifacts []store.ArtifactPath
}
