package job

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/pkgs"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/source"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

// NewRunnable assembles the executable form of a job spec.
//
// extraEnv is the user-provided environment (CLI flags); it wins over the
// package environment. The VULCAN_* builtins are injected last and cannot be
// overridden.
func NewRunnable(
	spec Spec,
	cache *source.Cache,
	shebang string,
	extraEnv map[string]string,
	depArtifacts []store.ArtifactPath,
) (*Runnable, error) {
	p := spec.Package
	env, err := mergeEnv(p, extraEnv)
	if err != nil {
		return nil, err
	}

	// Hash before builtins: the job UUID must not make equal jobs unequal.
	envHash := pkgs.EnvHash(env)

	env["VULCAN_JOB"] = spec.UUID.String()
	env["VULCAN_PACKAGE"] = string(p.Name)
	env["VULCAN_VERSION"] = string(p.Version)

	script, err := assembleScript(p, shebang, env)
	if err != nil {
		return nil, err
	}

	sources := make([]string, 0, len(p.Sources))
	for name := range p.Sources {
		sources = append(sources, cache.Path(p, name))
	}
	sort.Strings(sources)

	return &Runnable{
		Spec:                spec,
		Script:              script,
		Env:                 env,
		EnvHash:             envHash,
		SourcePaths:         sources,
		DependencyArtifacts: depArtifacts,
	}, nil
}

// assembleScript joins the package phases, in phase order, into one shell
// script. The workspace layout (src/, deps/, out/) is exported for the
// phases to use.
// mergeEnv combines the package environment with the user-provided one.
// The package environment gets ${VAR} expansion here; the reserved VULCAN_*
// check applies to it just like to user-provided variables.
func mergeEnv(p *schema.Package, extraEnv map[string]string) (map[string]string, error) {
	pkgEnv, err := schema.ExpandEnv(p.Env)
	if err != nil {
		return nil, errors.Wrapf(err, "environment of package %s", p.ID())
	}

	env := make(map[string]string, len(pkgEnv)+len(extraEnv))
	for k, v := range pkgEnv {
		env[k] = v
	}
	for k, v := range extraEnv {
		env[k] = v
	}
	return env, nil
}

// EnvHashFor returns the hash that identifies a job's non-builtin
// environment, for looking up artifacts of equivalent earlier jobs.
func EnvHashFor(p *schema.Package, extraEnv map[string]string) (string, error) {
	env, err := mergeEnv(p, extraEnv)
	if err != nil {
		return "", err
	}
	return pkgs.EnvHash(env), nil
}

func assembleScript(p *schema.Package, shebang string, env map[string]string) (string, error) {
	if len(p.PhaseOrder) == 0 {
		return "", errors.Errorf("package %s defines no phase order", p.ID())
	}

	var b strings.Builder
	b.WriteString(shebang)
	b.WriteString("\nset -e\n\n")
	b.WriteString("export VULCAN_SOURCES=\"$PWD/src\"\n")
	b.WriteString("export VULCAN_DEPS=\"$PWD/deps\"\n")
	b.WriteString("export VULCAN_OUT=\"$PWD/out\"\n")

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(env[k]))
	}

	for _, name := range p.PhaseOrder {
		phase, ok := p.Phases[name]
		if !ok {
			return "", errors.Errorf("package %s orders phase %q but does not define it", p.ID(), name)
		}
		fmt.Fprintf(&b, "\n### phase: %s\n", name)
		b.WriteString(strings.TrimRight(string(phase), "\n"))
		b.WriteString("\n")
	}

	return b.String(), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
