package schema

import (
	"github.com/SoftKiwiGames/vulcan/vulcan/pkgs"
)

// Package is one package definition as found in a pkg.yml file. Fields left
// empty in a leaf file are inherited from the pkg.yml files of the parent
// directories.
type Package struct {
	Name    pkgs.Name    `yaml:"name,omitempty"`
	Version pkgs.Version `yaml:"version,omitempty"`

	Sources      map[string]Source `yaml:"sources,omitempty"`
	Dependencies Dependencies      `yaml:"dependencies,omitempty"`

	// PhaseOrder names the phases to run, in order. Phases not listed are
	// ignored even if defined.
	PhaseOrder []string          `yaml:"phase_order,omitempty"`
	Phases     map[string]Phase  `yaml:"phases,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
}

type Source struct {
	URL  string `yaml:"url"`
	Hash Hash   `yaml:"hash"`
}

type Hash struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type Dependencies struct {
	Build   []pkgs.Dependency `yaml:"build,omitempty"`
	Runtime []pkgs.Dependency `yaml:"runtime,omitempty"`
}

// Phase is one build phase script fragment.
type Phase string

// ID returns the package identity string ("name-version").
func (p *Package) ID() string {
	return pkgs.ID(p.Name, p.Version)
}

// All returns build and runtime dependencies combined; both must be present
// before the package builds.
func (d Dependencies) All() []pkgs.Dependency {
	out := make([]pkgs.Dependency, 0, len(d.Build)+len(d.Runtime))
	out = append(out, d.Build...)
	out = append(out, d.Runtime...)
	return out
}

// Merge layers an override definition over a base definition and returns the
// result. Scalars are replaced when set, maps are merged key-wise with the
// override winning, slices are replaced when non-empty.
func Merge(base, override Package) Package {
	out := base

	if override.Name != "" {
		out.Name = override.Name
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	if len(override.PhaseOrder) > 0 {
		out.PhaseOrder = override.PhaseOrder
	}
	if len(override.Dependencies.Build) > 0 {
		out.Dependencies.Build = override.Dependencies.Build
	}
	if len(override.Dependencies.Runtime) > 0 {
		out.Dependencies.Runtime = override.Dependencies.Runtime
	}

	out.Sources = mergeMap(base.Sources, override.Sources)
	out.Phases = mergeMap(base.Phases, override.Phases)
	out.Env = mergeMap(base.Env, override.Env)

	return out
}

func mergeMap[V any](base, override map[string]V) map[string]V {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]V, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
