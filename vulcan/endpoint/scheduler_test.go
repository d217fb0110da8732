package endpoint

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoftKiwiGames/vulcan/vulcan/db"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

type fakeSession struct {
	mu       sync.Mutex
	commands []string
	uploads  map[string][]byte
	listing  []string
	remote   map[string][]byte
	failCmd  string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		uploads: make(map[string][]byte),
		remote:  make(map[string][]byte),
	}
}

func (s *fakeSession) Run(ctx context.Context, cmd string, stdout, stderr io.Writer) error {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	if s.failCmd != "" && strings.Contains(cmd, s.failCmd) {
		fmt.Fprintln(stderr, "boom")
		return errors.New("exit status 1")
	}
	if strings.Contains(cmd, "build.sh") {
		fmt.Fprintln(stdout, "building")
	}
	return nil
}

func (s *fakeSession) CopyFile(ctx context.Context, content io.Reader, remotePath string, mode uint32) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.uploads[remotePath] = data
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) FetchFile(ctx context.Context, remotePath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.remote[remotePath]
	if !ok {
		return nil, errors.Errorf("no such file %s", remotePath)
	}
	return data, nil
}

func (s *fakeSession) ListDir(ctx context.Context, remotePath string) ([]string, error) {
	return s.listing, nil
}

func (s *fakeSession) Close() error {
	return nil
}

type fakeClient struct {
	session *fakeSession
}

func (c *fakeClient) Connect(ctx context.Context, host ssh.Host) (ssh.Session, error) {
	return c.session, nil
}

func (c *fakeClient) Close() error {
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	jobs      []db.Job
	logs      []string
	artifacts [][]string
}

func (r *fakeRecorder) CreateJob(ctx context.Context, j db.Job, log string, artifactPaths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
	r.logs = append(r.logs, log)
	r.artifacts = append(r.artifacts, artifactPaths)
	return nil
}

func testRunnable(t *testing.T) *job.Runnable {
	t.Helper()
	return &job.Runnable{
		Spec: job.Spec{
			UUID:    uuid.New(),
			Package: &schema.Package{Name: "app", Version: "1.0"},
		},
		Script:  "#!/bin/bash\nset -e\necho hi\n",
		EnvHash: "deadbeef",
	}
}

func testScheduler(t *testing.T, sess *fakeSession, rec JobRecorder, endpoints ...schema.Endpoint) *Scheduler {
	t.Helper()

	staging, err := store.Load(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	release, err := store.Load(filepath.Join(t.TempDir(), "release"))
	require.NoError(t, err)

	s, err := NewScheduler(SchedulerSetup{
		Endpoints: endpoints,
		Client:    &fakeClient{session: sess},
		Staging:   staging,
		Release:   release,
		Recorder:  rec,
		SubmitID:  uuid.New(),
		LogDir:    t.TempDir(),
	})
	require.NoError(t, err)
	return s
}

func TestNewSchedulerRequiresEndpoints(t *testing.T) {
	_, err := NewScheduler(SchedulerSetup{})
	assert.Error(t, err)
}

func TestSchedulerSelectsLeastLoaded(t *testing.T) {
	s := testScheduler(t, newFakeSession(), nil,
		schema.Endpoint{Name: "big", Addr: "big:22", User: "ci", MaxJobs: 2},
		schema.Endpoint{Name: "small", Addr: "small:22", User: "ci", MaxJobs: 1},
	)
	assert.Equal(t, 3, s.TotalSlots())

	counts := make(map[string]int)
	for i := 0; i < 3; i++ {
		h, err := s.Schedule(context.Background(), testRunnable(t), nil)
		require.NoError(t, err)
		counts[h.Endpoint().Name()]++
	}

	assert.Equal(t, 2, counts["big"])
	assert.Equal(t, 1, counts["small"])
}

func TestScheduleBlocksWhenSaturated(t *testing.T) {
	sess := newFakeSession()
	sess.listing = []string{"app-1.0.pkg.tar"}

	s := testScheduler(t, sess, nil,
		schema.Endpoint{Name: "solo", Addr: "solo:22", User: "ci", MaxJobs: 1},
	)

	r := testRunnable(t)
	sess.remote[fmt.Sprintf("/tmp/vulcan/%s/out/app-1.0.pkg.tar", r.UUID)] = []byte("artifact")

	h, err := s.Schedule(context.Background(), r, nil)
	require.NoError(t, err)

	second := make(chan struct{})
	go func() {
		h2, err := s.Schedule(context.Background(), testRunnable(t), nil)
		if err == nil {
			s.release(h2.endpoint)
		}
		close(second)
	}()

	select {
	case <-second:
		t.Fatal("second job was scheduled while the only slot was taken")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = h.Run(context.Background())
	require.NoError(t, err)

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("slot was not released after the job finished")
	}
}

func TestScheduleNeverExceedsMaxJobs(t *testing.T) {
	const n = 16

	endpoints := make([]schema.Endpoint, n)
	for i := range endpoints {
		endpoints[i] = schema.Endpoint{
			Name:    fmt.Sprintf("ep-%d", i),
			Addr:    fmt.Sprintf("ep-%d:22", i),
			User:    "ci",
			MaxJobs: 1,
		}
	}
	s := testScheduler(t, newFakeSession(), nil, endpoints...)

	// Race all slots at once, repeatedly: every endpoint has one slot, so
	// no endpoint may ever carry two jobs.
	for iter := 0; iter < 20; iter++ {
		handles := make(chan *Handle, n)
		errs := make(chan error, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := s.Schedule(context.Background(), testRunnable(t), nil)
				if err != nil {
					errs <- err
					return
				}
				handles <- h
			}()
		}
		wg.Wait()
		close(handles)
		close(errs)

		for err := range errs {
			t.Fatalf("iteration %d: %v", iter, err)
		}

		for _, ep := range s.endpoints {
			if ep.Running() > ep.MaxJobs() {
				t.Fatalf("iteration %d: endpoint %q got %d concurrent jobs, MaxJobs is %d",
					iter, ep.Name(), ep.Running(), ep.MaxJobs())
			}
		}

		for h := range handles {
			s.release(h.endpoint)
		}
	}
}

func TestScheduleHonorsContext(t *testing.T) {
	s := testScheduler(t, newFakeSession(), nil,
		schema.Endpoint{Name: "solo", Addr: "solo:22", User: "ci", MaxJobs: 1},
	)

	_, err := s.Schedule(context.Background(), testRunnable(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = s.Schedule(ctx, testRunnable(t), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleRun(t *testing.T) {
	srcDir := t.TempDir()
	srcPath := filepath.Join(srcDir, "app-1.0.tar.gz.source")
	require.NoError(t, os.WriteFile(srcPath, []byte("source"), 0644))

	sess := newFakeSession()
	rec := &fakeRecorder{}
	s := testScheduler(t, sess, rec,
		schema.Endpoint{Name: "solo", Addr: "solo:22", User: "ci", MaxJobs: 1},
	)

	require.NoError(t, s.stores.Release.Add("zlib-1.3/zlib-1.3.pkg.tar", strings.NewReader("dep")))

	r := testRunnable(t)
	r.SourcePaths = []string{srcPath}
	r.DependencyArtifacts = []store.ArtifactPath{"zlib-1.3/zlib-1.3.pkg.tar"}

	workDir := fmt.Sprintf("/tmp/vulcan/%s", r.UUID)
	sess.listing = []string{"app-1.0.pkg.tar"}
	sess.remote[workDir+"/out/app-1.0.pkg.tar"] = []byte("artifact")

	h, err := s.Schedule(context.Background(), r, nil)
	require.NoError(t, err)

	artifacts, err := h.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []store.ArtifactPath{"app-1.0/app-1.0.pkg.tar"}, artifacts)

	// Inputs and the script ended up in the workspace.
	assert.Equal(t, []byte("source"), sess.uploads[workDir+"/src/app-1.0.tar.gz.source"])
	assert.Equal(t, []byte("dep"), sess.uploads[workDir+"/deps/zlib-1.3.pkg.tar"])
	assert.Equal(t, []byte(r.Script), sess.uploads[workDir+"/build.sh"])

	// The artifact landed in the staging store.
	assert.True(t, s.staging.Has("app-1.0/app-1.0.pkg.tar"))

	// The job was recorded with its artifacts and log.
	require.Len(t, rec.jobs, 1)
	assert.Equal(t, r.UUID, rec.jobs[0].ID)
	assert.Equal(t, "solo", rec.jobs[0].Endpoint)
	assert.True(t, rec.jobs[0].Success)
	assert.Equal(t, []string{"app-1.0/app-1.0.pkg.tar"}, rec.artifacts[0])
	assert.Contains(t, rec.logs[0], "building")

	// The log file was written.
	logData, err := os.ReadFile(filepath.Join(s.logDir, r.UUID.String()+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "building")

	// The slot was released.
	assert.Equal(t, 0, s.endpoints[0].Running())
}

func TestHandleRunScriptFailure(t *testing.T) {
	sess := newFakeSession()
	sess.failCmd = "./build.sh"
	rec := &fakeRecorder{}
	s := testScheduler(t, sess, rec,
		schema.Endpoint{Name: "solo", Addr: "solo:22", User: "ci", MaxJobs: 1},
	)

	h, err := s.Schedule(context.Background(), testRunnable(t), nil)
	require.NoError(t, err)

	_, err = h.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on 'solo'")

	require.Len(t, rec.jobs, 1)
	assert.False(t, rec.jobs[0].Success)
	assert.Contains(t, rec.logs[0], "boom")

	assert.Equal(t, 0, s.endpoints[0].Running())
}
