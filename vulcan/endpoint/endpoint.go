// Package endpoint schedules build jobs onto remote build endpoints.
package endpoint

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/utils"
)

// Endpoint is one remote build machine. MaxJobs bounds how many jobs may run
// on it at once.
type Endpoint struct {
	name    string
	host    ssh.Host
	maxJobs int
	workDir string

	running atomic.Int32
}

func New(cfg schema.Endpoint) (*Endpoint, error) {
	keyPath, err := utils.ExpandPath(cfg.Key)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint %s: invalid key path", cfg.Name)
	}

	maxJobs := cfg.MaxJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = "/tmp"
	}

	return &Endpoint{
		name: cfg.Name,
		host: ssh.Host{
			Name:    cfg.Name,
			Address: cfg.Addr,
			User:    cfg.User,
			KeyPath: keyPath,
		},
		maxJobs: maxJobs,
		workDir: workDir,
	}, nil
}

func (e *Endpoint) Name() string {
	return e.name
}

func (e *Endpoint) MaxJobs() int {
	return e.maxJobs
}

// Running returns the number of jobs currently executing on this endpoint.
func (e *Endpoint) Running() int {
	return int(e.running.Load())
}

func (e *Endpoint) free() int {
	return e.maxJobs - e.Running()
}

// Ping runs a no-op command to check that the endpoint is reachable.
func (e *Endpoint) Ping(ctx context.Context, client ssh.Client) error {
	sess, err := client.Connect(ctx, e.host)
	if err != nil {
		return errors.Wrapf(err, "endpoint %s unreachable", e.name)
	}
	defer sess.Close()

	return errors.Wrapf(sess.Run(ctx, "true", io.Discard, io.Discard), "endpoint %s failed ping", e.name)
}
