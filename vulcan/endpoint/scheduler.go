package endpoint

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/db"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
)

// JobRecorder persists finished jobs. *db.DB implements it; a nil recorder
// disables persistence.
type JobRecorder interface {
	CreateJob(ctx context.Context, j db.Job, log string, artifactPaths []string) error
}

// Scheduler hands jobs to the least loaded endpoint. Schedule blocks while
// every endpoint is saturated.
type Scheduler struct {
	endpoints []*Endpoint
	client    ssh.Client

	staging  *store.Store
	stores   store.Merged
	recorder JobRecorder
	submitID uuid.UUID
	logDir   string

	// slots is a semaphore over the total job capacity of all endpoints.
	// Holding a slot guarantees that at least one endpoint has a free one.
	slots chan struct{}

	// mu serializes endpoint selection with the running-counter increment,
	// so two concurrent Schedule calls cannot claim the same free slot.
	mu sync.Mutex
}

type SchedulerSetup struct {
	Endpoints []schema.Endpoint
	Client    ssh.Client
	Staging   *store.Store
	Release   *store.Store
	Recorder  JobRecorder
	SubmitID  uuid.UUID
	LogDir    string
}

func NewScheduler(setup SchedulerSetup) (*Scheduler, error) {
	if len(setup.Endpoints) == 0 {
		return nil, errors.New("no endpoints configured")
	}

	endpoints := make([]*Endpoint, 0, len(setup.Endpoints))
	total := 0
	for _, cfg := range setup.Endpoints {
		ep, err := New(cfg)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
		total += ep.MaxJobs()
	}

	slots := make(chan struct{}, total)
	for i := 0; i < total; i++ {
		slots <- struct{}{}
	}

	return &Scheduler{
		endpoints: endpoints,
		client:    setup.Client,
		staging:   setup.Staging,
		stores:    store.Merged{Staging: setup.Staging, Release: setup.Release},
		recorder:  setup.Recorder,
		submitID:  setup.SubmitID,
		logDir:    setup.LogDir,
		slots:     slots,
	}, nil
}

// Endpoints returns the scheduler's endpoints.
func (s *Scheduler) Endpoints() []*Endpoint {
	return s.endpoints
}

// TotalSlots returns the summed job capacity of all endpoints.
func (s *Scheduler) TotalSlots() int {
	return cap(s.slots)
}

// Schedule reserves a slot and assigns the job to the endpoint with the most
// free capacity. It blocks while all endpoints are busy.
func (s *Scheduler) Schedule(ctx context.Context, r *job.Runnable, logSink io.Writer) (*Handle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.slots:
	}

	s.mu.Lock()
	ep := s.selectEndpoint()
	ep.running.Add(1)
	s.mu.Unlock()

	ctxlog.FromContext(ctx).Debug("scheduled job",
		"job", r.UUID, "package", r.Package.ID(), "endpoint", ep.Name())

	return &Handle{
		scheduler: s,
		endpoint:  ep,
		job:       r,
		logSink:   logSink,
	}, nil
}

func (s *Scheduler) selectEndpoint() *Endpoint {
	eps := make([]*Endpoint, len(s.endpoints))
	copy(eps, s.endpoints)
	sort.SliceStable(eps, func(i, j int) bool { return eps[i].free() > eps[j].free() })
	return eps[0]
}

func (s *Scheduler) release(ep *Endpoint) {
	ep.running.Add(-1)
	s.slots <- struct{}{}
}
