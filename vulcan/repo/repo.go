// Package repo loads a directory tree of package definitions.
//
// Every directory may hold a pkg.yml file. A definition that names both a
// package name and a version defines a package; everything it sets is also
// inherited as defaults by the pkg.yml files in its subdirectories. This
// keeps shared phases and environment in one place near the top of the tree.
package repo

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/pkgs"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/utils"
)

type Repository struct {
	root     string
	packages []schema.Package
	byName   map[pkgs.Name][]int
}

func Load(ctx context.Context, root string) (*Repository, error) {
	logger := ctxlog.FromContext(ctx)

	r := &Repository{
		root:   root,
		byName: make(map[pkgs.Name][]int),
	}

	if err := r.loadDir(ctx, root, schema.Package{}); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(r.packages))
	for i := range r.packages {
		p := &r.packages[i]
		if seen[p.ID()] {
			return nil, errors.Errorf("repository: duplicate package %s", p.ID())
		}
		seen[p.ID()] = true
		r.byName[p.Name] = append(r.byName[p.Name], i)
	}

	logger.Debug("loaded package repository", "root", root, "packages", len(r.packages))
	return r, nil
}

func (r *Repository) loadDir(ctx context.Context, dir string, base schema.Package) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to list %s", dir)
	}

	merged := base
	hasDef := false

	for _, e := range entries {
		if e.IsDir() || !utils.IsPackageFile(e.Name()) {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}

		var def schema.Package
		if err := yaml.Unmarshal(data, &def); err != nil {
			return errors.Wrapf(err, "failed to parse %s", path)
		}

		merged = schema.Merge(merged, def)
		hasDef = true
		break
	}

	// A directory without its own pkg.yml only passes defaults down, it
	// never defines a package itself.
	if hasDef && merged.Name != "" && merged.Version != "" {
		ctxlog.FromContext(ctx).Debug("found package", "id", merged.ID(), "dir", dir)
		r.packages = append(r.packages, merged)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := r.loadDir(ctx, filepath.Join(dir, e.Name()), merged); err != nil {
			return err
		}
	}

	return nil
}

// Packages returns all loaded packages.
func (r *Repository) Packages() []schema.Package {
	return r.packages
}

// Versions returns every known version of a package, ascending.
func (r *Repository) Versions(name pkgs.Name) []schema.Package {
	idxs := r.byName[name]
	out := make([]schema.Package, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, r.packages[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Find resolves one package by name and constraint. "latest" and an empty
// constraint both resolve to the highest known version.
func (r *Repository) Find(name pkgs.Name, constraint pkgs.Constraint) (*schema.Package, error) {
	candidates := r.Versions(name)
	if len(candidates) == 0 {
		return nil, errors.Errorf("package %q not found in repository", name)
	}

	var matching []schema.Package
	undecided := false
	for _, p := range candidates {
		switch m := constraint.Matches(p.Version); {
		case m.IsTrue():
			matching = append(matching, p)
		case m.IsUndecided():
			undecided = true
		}
	}

	if undecided && len(matching) == 0 {
		// "latest": take the highest version of all candidates.
		matching = candidates
	}
	if len(matching) == 0 {
		return nil, errors.Errorf("no version of %q matches %s", name, constraint)
	}

	best := matching[len(matching)-1]
	return &best, nil
}
