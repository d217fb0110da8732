// Package orchestrator runs the jobs of one submit.
//
// Every job gets a task. The tasks form a tree mirroring the dependency
// graph: each task holds a receiver for the results of the jobs it depends
// on, and the senders of the tasks that depend on it. Results travel upward
// until the root task reports to the orchestrator itself.
package orchestrator

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/SoftKiwiGames/vulcan/vulcan/endpoint"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/source"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
	"github.com/SoftKiwiGames/vulcan/vulcan/ui"
)

// Scheduler assigns runnable jobs to build endpoints.
type Scheduler interface {
	Schedule(ctx context.Context, r *job.Runnable, logSink io.Writer) (JobHandle, error)
}

// JobHandle is one scheduled job; Run executes it.
type JobHandle interface {
	Run(ctx context.Context) ([]store.ArtifactPath, error)
}

// ArtifactFinder looks up artifacts of equivalent earlier jobs. *db.DB
// implements it; a nil finder disables artifact reuse.
type ArtifactFinder interface {
	FindArtifacts(ctx context.Context, pkg, version, envHash string) ([]string, error)
}

// WrapScheduler adapts the endpoint scheduler to the Scheduler interface.
func WrapScheduler(s *endpoint.Scheduler) Scheduler {
	return endpointScheduler{s}
}

type endpointScheduler struct {
	s *endpoint.Scheduler
}

func (w endpointScheduler) Schedule(ctx context.Context, r *job.Runnable, logSink io.Writer) (JobHandle, error) {
	return w.s.Schedule(ctx, r, logSink)
}

type Setup struct {
	Scheduler Scheduler
	Finder    ArtifactFinder
	Stores    store.Merged
	Cache     *source.Cache
	Shebang   string

	// ExtraEnv is the user-provided environment, merged into every job.
	ExtraEnv map[string]string

	Bars *ui.ProgressBars

	// Parallel caps how many jobs may be scheduled at once. Zero or
	// negative means no cap beyond the endpoint slots.
	Parallel int

	Specs []job.Spec
}

type Orchestrator struct {
	scheduler Scheduler
	finder    ArtifactFinder
	stores    store.Merged
	cache     *source.Cache
	shebang   string
	extraEnv  map[string]string
	bars      *ui.ProgressBars
	limit     chan struct{}
	specs     []job.Spec
}

func New(setup Setup) (*Orchestrator, error) {
	if setup.Scheduler == nil {
		return nil, errors.New("orchestrator needs a scheduler")
	}
	if setup.Cache == nil {
		return nil, errors.New("orchestrator needs a source cache")
	}
	if len(setup.Specs) == 0 {
		return nil, errors.New("nothing to build")
	}

	var limit chan struct{}
	if setup.Parallel > 0 {
		limit = make(chan struct{}, setup.Parallel)
		for i := 0; i < setup.Parallel; i++ {
			limit <- struct{}{}
		}
	}

	return &Orchestrator{
		scheduler: setup.Scheduler,
		finder:    setup.Finder,
		stores:    setup.Stores,
		cache:     setup.Cache,
		shebang:   setup.Shebang,
		extraEnv:  setup.ExtraEnv,
		bars:      setup.Bars,
		limit:     limit,
		specs:     setup.Specs,
	}, nil
}

// Run builds all jobs and returns the artifacts the root job produced (or
// reused), plus a map of job errors. A failed job fails everything that
// depends on it; independent subtrees keep building.
func (o *Orchestrator) Run(ctx context.Context) ([]store.ArtifactPath, map[uuid.UUID]error, error) {
	tasks, root, err := o.buildTree()
	if err != nil {
		return nil, nil, err
	}

	if o.bars != nil {
		o.bars.Start()
		defer o.bars.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return t.run(gctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	select {
	case res := <-root:
		if len(res.errors) > 0 {
			return nil, res.errors, nil
		}
		var artifacts []store.ArtifactPath
		for _, paths := range res.artifacts {
			artifacts = append(artifacts, paths...)
		}
		return artifacts, nil, nil
	default:
		return nil, nil, errors.New("no result received from root job")
	}
}

// buildTree wires a task per job spec: the task's senders are the receivers
// of all jobs depending on it. Exactly one task has no dependents; it sends
// to the returned root channel.
func (o *Orchestrator) buildTree() ([]*task, chan taskResult, error) {
	tasks := make(map[uuid.UUID]*task, len(o.specs))
	for _, spec := range o.specs {
		t := &task{
			spec:     spec,
			orch:     o,
			receiver: make(chan taskResult, len(o.specs)),
		}
		if o.bars != nil {
			t.tracker = o.bars.Job(t.message("waiting"))
		}
		tasks[spec.UUID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.spec.Dependencies {
			depTask, ok := tasks[dep]
			if !ok {
				return nil, nil, errors.Errorf("job %s depends on unknown job %s", t.spec.UUID, dep)
			}
			depTask.senders = append(depTask.senders, t.receiver)
		}
	}

	root := make(chan taskResult, 1)
	var rootCount int
	all := make([]*task, 0, len(tasks))
	for _, t := range tasks {
		if len(t.senders) == 0 {
			t.senders = []chan taskResult{root}
			rootCount++
		}
		all = append(all, t)
	}
	if rootCount != 1 {
		return nil, nil, errors.Errorf("expected exactly one root job, found %d", rootCount)
	}

	return all, root, nil
}
