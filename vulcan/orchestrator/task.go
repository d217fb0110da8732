package orchestrator

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

// taskResult is what a task sends upward: either the accumulated artifacts
// of itself and everything below it, or the errors collected below it.
type taskResult struct {
	artifacts map[uuid.UUID][]store.ArtifactPath
	errors    map[uuid.UUID]error
}

// task drives one job. It receives one result from each direct dependency,
// then either reuses replacement artifacts or schedules the job, and sends
// its accumulated result to every dependent.
type task struct {
	spec job.Spec
	orch *Orchestrator

	receiver chan taskResult
	senders  []chan taskResult

	tracker *progress.Tracker
}

func (t *task) message(state string) string {
	return fmt.Sprintf("%s: %s", t.spec.Package.ID(), state)
}

func (t *task) setState(state string) {
	if t.tracker != nil {
		t.tracker.UpdateMessage(t.message(state))
	}
}

func (t *task) finish(state string, failed bool) {
	if t.tracker == nil {
		return
	}
	t.tracker.UpdateMessage(t.message(state))
	if failed {
		t.tracker.MarkAsErrored()
	} else {
		t.tracker.MarkAsDone()
	}
}

func (t *task) run(ctx context.Context) error {
	log := ctxlog.FromContext(ctx)
	log.Debug("task running", "job", t.spec.UUID, "package", t.spec.Package.ID(),
		"dependencies", len(t.spec.Dependencies))

	received, errs, err := t.receiveDependencies(ctx)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		// The subtree already failed, pass the errors up and stop.
		t.sendAll(taskResult{errors: errs})
		t.finish("failed dependency", true)
		return nil
	}

	replacements, err := t.replacementArtifacts(ctx)
	if err != nil {
		t.sendAll(taskResult{errors: map[uuid.UUID]error{t.spec.UUID: err}})
		t.finish("artifact lookup failed", true)
		return nil
	}
	if len(replacements) > 0 {
		log.Debug("reusing artifacts", "job", t.spec.UUID, "count", len(replacements))
		received[t.spec.UUID] = replacements
		t.sendAll(taskResult{artifacts: received})
		t.finish("reused artifacts", false)
		return nil
	}

	artifacts, err := t.build(ctx, received)
	if err != nil {
		log.Debug("job failed", "job", t.spec.UUID, "error", err)
		t.sendAll(taskResult{errors: map[uuid.UUID]error{t.spec.UUID: err}})
		t.finish("failed", true)
		return nil
	}

	received[t.spec.UUID] = artifacts
	t.sendAll(taskResult{artifacts: received})
	t.finish("done", false)
	return nil
}

// receiveDependencies collects exactly one result per direct dependency.
// The artifact maps accumulate transitively, so after all sends are in,
// every dependency UUID must be present.
func (t *task) receiveDependencies(ctx context.Context) (map[uuid.UUID][]store.ArtifactPath, map[uuid.UUID]error, error) {
	received := make(map[uuid.UUID][]store.ArtifactPath)
	errs := make(map[uuid.UUID]error)

	for i := 0; i < len(t.spec.Dependencies); i++ {
		t.setState(fmt.Sprintf("waiting (%d/%d)", i, len(t.spec.Dependencies)))

		var res taskResult
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case res = <-t.receiver:
		}

		for id, paths := range res.artifacts {
			received[id] = paths
		}
		for id, err := range res.errors {
			errs[id] = err
		}

		if len(errs) > 0 {
			return received, errs, nil
		}
	}

	var missing []string
	for _, dep := range t.spec.Dependencies {
		if _, ok := received[dep]; !ok {
			missing = append(missing, dep.String())
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.Errorf("job %s: dependency jobs finished but results are missing: %v",
			t.spec.UUID, missing)
	}

	return received, errs, nil
}

// replacementArtifacts checks whether an equivalent earlier job already
// produced artifacts for this package. Staging store artifacts win over
// released ones; duplicates by path are dropped.
func (t *task) replacementArtifacts(ctx context.Context) ([]store.ArtifactPath, error) {
	if t.orch.finder == nil {
		return nil, nil
	}

	p := t.spec.Package
	envHash, err := job.EnvHashFor(p, t.orch.extraEnv)
	if err != nil {
		return nil, err
	}

	paths, err := t.orch.finder.FindArtifacts(ctx, string(p.Name), string(p.Version), envHash)
	if err != nil {
		return nil, errors.Wrapf(err, "replacement artifact lookup for %s", p.ID())
	}

	seen := make(map[store.ArtifactPath]struct{}, len(paths))
	var artifacts []store.ArtifactPath
	for _, raw := range paths {
		ap := store.ArtifactPath(raw)
		if _, ok := seen[ap]; ok {
			continue
		}
		seen[ap] = struct{}{}

		// Only artifacts that still exist on disk can replace a build.
		if _, ok := t.orch.stores.Locate(ap); ok {
			artifacts = append(artifacts, ap)
		}
	}

	return artifacts, nil
}

func (t *task) build(ctx context.Context, received map[uuid.UUID][]store.ArtifactPath) ([]store.ArtifactPath, error) {
	var depArtifacts []store.ArtifactPath
	for _, paths := range received {
		depArtifacts = append(depArtifacts, paths...)
	}
	sort.Slice(depArtifacts, func(i, j int) bool { return depArtifacts[i] < depArtifacts[j] })

	t.setState("preparing")
	runnable, err := job.NewRunnable(t.spec, t.orch.cache, t.orch.shebang, t.orch.extraEnv, depArtifacts)
	if err != nil {
		return nil, err
	}

	if t.orch.limit != nil {
		t.setState("queued")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.orch.limit:
		}
		defer func() { t.orch.limit <- struct{}{} }()
	}

	t.setState("scheduling")
	handle, err := t.orch.scheduler.Schedule(ctx, runnable, nil)
	if err != nil {
		return nil, err
	}

	t.setState("building")
	return handle.Run(ctx)
}

func (t *task) sendAll(res taskResult) {
	for _, s := range t.senders {
		s <- res
	}
}
