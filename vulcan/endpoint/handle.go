package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/db"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

// Handle is one scheduled job bound to its endpoint. Run executes it exactly
// once and frees the slot, successful or not.
type Handle struct {
	scheduler *Scheduler
	endpoint  *Endpoint
	job       *job.Runnable
	logSink   io.Writer
}

// Endpoint returns the endpoint the job was assigned to.
func (h *Handle) Endpoint() *Endpoint {
	return h.endpoint
}

// Run executes the job on its endpoint: set up an isolated workspace, upload
// sources, dependency artifacts and the build script, run the script, and on
// success pull everything from the output directory into the staging store.
// The job row is recorded either way.
func (h *Handle) Run(ctx context.Context) ([]store.ArtifactPath, error) {
	defer h.scheduler.release(h.endpoint)

	log := ctxlog.FromContext(ctx)
	started := time.Now()

	var logBuf bytes.Buffer
	out := io.Writer(&logBuf)
	if h.logSink != nil {
		out = io.MultiWriter(&logBuf, h.logSink)
	}

	artifacts, runErr := h.run(ctx, out)

	if err := h.writeLogFile(logBuf.Bytes()); err != nil {
		log.Warn("failed to write job log", "job", h.job.UUID, "error", err)
	}
	if err := h.record(ctx, started, runErr == nil, logBuf.String(), artifacts); err != nil {
		log.Warn("failed to record job", "job", h.job.UUID, "error", err)
	}

	if runErr != nil {
		return nil, errors.Wrapf(runErr, "running job %s on '%s'", h.job.UUID, h.endpoint.Name())
	}
	return artifacts, nil
}

func (h *Handle) run(ctx context.Context, out io.Writer) ([]store.ArtifactPath, error) {
	sess, err := h.scheduler.client.Connect(ctx, h.endpoint.host)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect")
	}
	defer sess.Close()

	workDir := path.Join(h.endpoint.workDir, "vulcan", h.job.UUID.String())

	mkdir := fmt.Sprintf("mkdir -p %s/src %s/deps %s/out", workDir, workDir, workDir)
	if err := sess.Run(ctx, mkdir, io.Discard, io.Discard); err != nil {
		return nil, errors.Wrapf(err, "failed to create workspace %s", workDir)
	}
	// Workspace cleanup is best effort, a leftover directory only costs disk.
	defer sess.Run(ctx, fmt.Sprintf("rm -rf %s", workDir), io.Discard, io.Discard)

	if err := h.uploadInputs(ctx, sess, workDir); err != nil {
		return nil, err
	}

	script := strings.NewReader(h.job.Script)
	if err := sess.CopyFile(ctx, script, path.Join(workDir, "build.sh"), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to upload build script")
	}

	cmd := fmt.Sprintf("cd %s && ./build.sh", workDir)
	if err := sess.Run(ctx, cmd, out, out); err != nil {
		return nil, errors.Wrap(err, "build script failed")
	}

	return h.collectOutputs(ctx, sess, workDir)
}

func (h *Handle) uploadInputs(ctx context.Context, sess ssh.Session, workDir string) error {
	for _, src := range h.job.SourcePaths {
		if err := h.uploadLocal(ctx, sess, src, path.Join(workDir, "src", filepath.Base(src))); err != nil {
			return errors.Wrapf(err, "failed to upload source %s", src)
		}
	}

	for _, dep := range h.job.DependencyArtifacts {
		st, ok := h.scheduler.stores.Locate(dep)
		if !ok {
			return errors.Errorf("dependency artifact %s not found in any store", dep)
		}
		remote := path.Join(workDir, "deps", path.Base(string(dep)))
		if err := h.uploadLocal(ctx, sess, st.FullPath(dep), remote); err != nil {
			return errors.Wrapf(err, "failed to upload dependency artifact %s", dep)
		}
	}

	return nil
}

func (h *Handle) uploadLocal(ctx context.Context, sess ssh.Session, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	return sess.CopyFile(ctx, f, remotePath, 0644)
}

// collectOutputs pulls every file the script left in out/ into the staging
// store, under the package ID.
func (h *Handle) collectOutputs(ctx context.Context, sess ssh.Session, workDir string) ([]store.ArtifactPath, error) {
	outDir := path.Join(workDir, "out")
	names, err := sess.ListDir(ctx, outDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list job output")
	}
	if len(names) == 0 {
		return nil, errors.New("build script produced no artifacts")
	}

	artifacts := make([]store.ArtifactPath, 0, len(names))
	for _, name := range names {
		data, err := sess.FetchFile(ctx, path.Join(outDir, name))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to fetch artifact %s", name)
		}

		p := store.ArtifactPath(path.Join(h.job.Package.ID(), name))
		if err := h.scheduler.staging.Add(p, bytes.NewReader(data)); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, p)
	}

	return artifacts, nil
}

func (h *Handle) writeLogFile(content []byte) error {
	if h.scheduler.logDir == "" {
		return nil
	}
	if err := os.MkdirAll(h.scheduler.logDir, 0755); err != nil {
		return err
	}
	name := filepath.Join(h.scheduler.logDir, h.job.UUID.String()+".log")
	return os.WriteFile(name, content, 0644)
}

func (h *Handle) record(ctx context.Context, started time.Time, success bool, log string, artifacts []store.ArtifactPath) error {
	if h.scheduler.recorder == nil {
		return nil
	}

	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		paths = append(paths, string(a))
	}

	return h.scheduler.recorder.CreateJob(ctx, db.Job{
		ID:       h.job.UUID,
		SubmitID: h.scheduler.submitID,
		Endpoint: h.endpoint.Name(),
		Package:  string(h.job.Package.Name),
		Version:  string(h.job.Package.Version),
		EnvHash:  h.job.EnvHash,
		Success:  success,
		Time:     started,
	}, log, paths)
}
