package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS submits (
	id         UUID PRIMARY KEY,
	time       TIMESTAMPTZ NOT NULL DEFAULT now(),
	repo_head  TEXT NOT NULL,
	repo_clean BOOLEAN NOT NULL,
	package    TEXT NOT NULL,
	version    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id        UUID PRIMARY KEY,
	submit_id UUID NOT NULL REFERENCES submits(id),
	endpoint  TEXT NOT NULL,
	package   TEXT NOT NULL,
	version   TEXT NOT NULL,
	env_hash  TEXT NOT NULL,
	success   BOOLEAN NOT NULL,
	log       TEXT NOT NULL DEFAULT '',
	time      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS jobs_equivalence_idx ON jobs (package, version, env_hash);

CREATE TABLE IF NOT EXISTS artifacts (
	id     BIGSERIAL PRIMARY KEY,
	job_id UUID NOT NULL REFERENCES jobs(id),
	path   TEXT NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, schemaSQL)
	return errors.Wrap(err, "failed to create schema")
}

func (db *DB) CreateSubmit(ctx context.Context, s Submit) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO submits (id, time, repo_head, repo_clean, package, version)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Time, s.RepoHead, s.RepoClean, s.Package, s.Version)
	return errors.Wrapf(err, "failed to insert submit %s", s.ID)
}

// CreateJob inserts a job with its log and, in the same transaction, the
// artifacts it produced.
func (db *DB) CreateJob(ctx context.Context, j Job, log string, artifactPaths []string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, submit_id, endpoint, package, version, env_hash, success, log, time)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		j.ID, j.SubmitID, j.Endpoint, j.Package, j.Version, j.EnvHash, j.Success, log, j.Time)
	if err != nil {
		return errors.Wrapf(err, "failed to insert job %s", j.ID)
	}

	for _, p := range artifactPaths {
		if _, err := tx.Exec(ctx,
			`INSERT INTO artifacts (job_id, path) VALUES ($1, $2)`, j.ID, p); err != nil {
			return errors.Wrapf(err, "failed to insert artifact %s", p)
		}
	}

	return errors.Wrap(tx.Commit(ctx), "failed to commit job")
}

func (db *DB) ListSubmits(ctx context.Context, limit int) ([]Submit, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, time, repo_head, repo_clean, package, version
		 FROM submits ORDER BY time DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list submits")
	}
	defer rows.Close()

	var out []Submit
	for rows.Next() {
		var s Submit
		if err := rows.Scan(&s.ID, &s.Time, &s.RepoHead, &s.RepoClean, &s.Package, &s.Version); err != nil {
			return nil, errors.Wrap(err, "failed to scan submit")
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListJobs returns the jobs of one submit, or of all submits when submitID
// is uuid.Nil.
func (db *DB) ListJobs(ctx context.Context, submitID uuid.UUID, limit int) ([]Job, error) {
	query := `SELECT id, submit_id, endpoint, package, version, env_hash, success, time
		 FROM jobs WHERE ($1::uuid IS NULL OR submit_id = $1) ORDER BY time DESC LIMIT $2`

	var submitArg any
	if submitID != uuid.Nil {
		submitArg = submitID
	}

	rows, err := db.pool.Query(ctx, query, submitArg, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.SubmitID, &j.Endpoint, &j.Package, &j.Version, &j.EnvHash, &j.Success, &j.Time); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (db *DB) JobLog(ctx context.Context, jobID uuid.UUID) (string, error) {
	var log string
	err := db.pool.QueryRow(ctx, `SELECT log FROM jobs WHERE id = $1`, jobID).Scan(&log)
	return log, errors.Wrapf(err, "failed to load log of job %s", jobID)
}

// FindArtifacts returns artifact paths of successful jobs that built the
// same package with the same environment, newest first. These are candidate
// replacements that let the orchestrator skip a rebuild.
func (db *DB) FindArtifacts(ctx context.Context, pkg, version, envHash string) ([]string, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.path
		 FROM artifacts a
		 JOIN jobs j ON j.id = a.job_id
		 WHERE j.package = $1 AND j.version = $2 AND j.env_hash = $3 AND j.success
		 ORDER BY j.time DESC`,
		pkg, version, envHash)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query replacement artifacts")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact path")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
