package db

import (
	"time"

	"github.com/google/uuid"
)

// Submit is one orchestrator invocation: root package plus the state of the
// package repository at the time.
type Submit struct {
	ID        uuid.UUID
	Time      time.Time
	RepoHead  string
	RepoClean bool
	Package   string
	Version   string
}

// Job is one package build within a submit.
type Job struct {
	ID       uuid.UUID
	SubmitID uuid.UUID
	Endpoint string
	Package  string
	Version  string
	EnvHash  string
	Success  bool
	Time     time.Time
}

// Artifact is one file a successful job produced, stored by path relative to
// the staging store root.
type Artifact struct {
	ID    int64
	JobID uuid.UUID
	Path  string
}
