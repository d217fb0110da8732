// Package dag resolves the build graph for a root package.
//
// Vertices are packages, edges point from a dependency to the package that
// needs it, so a topological sort yields a valid build order.
package dag

import (
	"context"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/repo"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
)

type DAG struct {
	g    graph.Graph[string, *schema.Package]
	root *schema.Package
}

func hashPackage(p *schema.Package) string {
	return p.ID()
}

// Build resolves the root package's transitive dependencies against the
// repository.
func Build(ctx context.Context, r *repo.Repository, root *schema.Package) (*DAG, error) {
	logger := ctxlog.FromContext(ctx)

	g := graph.New(hashPackage, graph.Directed(), graph.PreventCycles())
	if err := g.AddVertex(root); err != nil {
		return nil, errors.Wrap(err, "failed to add root package")
	}

	queue := []*schema.Package{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		for _, dep := range p.Dependencies.All() {
			name, constraint, err := dep.Parse()
			if err != nil {
				return nil, errors.Wrapf(err, "invalid dependency of %s", p.ID())
			}

			resolved, err := r.Find(name, constraint)
			if err != nil {
				return nil, errors.Wrapf(err, "resolving dependency %q of %s", string(dep), p.ID())
			}

			if resolved.ID() == p.ID() {
				return nil, errors.Errorf("package does depend on itself: %s %s", p.Name, p.Version)
			}

			if err := g.AddVertex(resolved); err == nil {
				queue = append(queue, resolved)
			} else if !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, errors.Wrapf(err, "failed to add %s", resolved.ID())
			}

			err = g.AddEdge(resolved.ID(), p.ID())
			switch {
			case err == nil:
			case errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, errors.Errorf("dependency cycle between %s and %s", resolved.ID(), p.ID())
			default:
				return nil, errors.Wrapf(err, "failed to add edge %s -> %s", resolved.ID(), p.ID())
			}

			logger.Debug("resolved dependency", "package", p.ID(), "dependency", resolved.ID())
		}
	}

	return &DAG{g: g, root: root}, nil
}

func (d *DAG) Root() *schema.Package {
	return d.root
}

// Packages returns all packages in build order (dependencies first).
func (d *DAG) Packages() ([]*schema.Package, error) {
	order, err := graph.StableTopologicalSort(d.g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, errors.Wrap(err, "failed to sort build graph")
	}

	out := make([]*schema.Package, 0, len(order))
	for _, h := range order {
		p, err := d.g.Vertex(h)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// JobSpecs assigns a fresh UUID to every package and wires up dependency
// UUIDs, producing the job graph of one submit.
func (d *DAG) JobSpecs() ([]job.Spec, error) {
	packages, err := d.Packages()
	if err != nil {
		return nil, err
	}

	preds, err := d.g.PredecessorMap()
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute dependency map")
	}

	ids := make(map[string]uuid.UUID, len(packages))
	for _, p := range packages {
		ids[p.ID()] = uuid.New()
	}

	specs := make([]job.Spec, 0, len(packages))
	for _, p := range packages {
		var deps []uuid.UUID
		for depHash := range preds[p.ID()] {
			deps = append(deps, ids[depHash])
		}
		specs = append(specs, job.Spec{
			UUID:         ids[p.ID()],
			Package:      p,
			Dependencies: deps,
		})
	}

	return specs, nil
}

// DirectDependencies returns the packages an individual package directly
// depends on, sorted by identity.
func (d *DAG) DirectDependencies(p *schema.Package) ([]*schema.Package, error) {
	preds, err := d.g.PredecessorMap()
	if err != nil {
		return nil, err
	}

	hashes := make([]string, 0, len(preds[p.ID()]))
	for h := range preds[p.ID()] {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	out := make([]*schema.Package, 0, len(hashes))
	for _, h := range hashes {
		dep, err := d.g.Vertex(h)
		if err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, nil
}
