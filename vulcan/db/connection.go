// Package db records submits, jobs and artifacts in PostgreSQL.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
)

type ConnConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func ConnConfigFromSchema(d schema.Database) ConnConfig {
	return ConnConfig{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Name:     d.Name,
	}
}

// URI returns the full connection string, password included. Never log this;
// use String() instead.
func (c ConnConfig) URI() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// String renders the connection target with the password redacted.
func (c ConnConfig) String() string {
	return fmt.Sprintf("postgres://%s:PASSWORD@%s:%s/%s", c.User, c.Host, c.Port, c.Name)
}

type DB struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, cfg ConnConfig) (*DB, error) {
	ctxlog.FromContext(ctx).Debug("connecting to database", "target", cfg.String())

	pool, err := pgxpool.New(ctx, cfg.URI())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", cfg)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrapf(err, "failed to ping %s", cfg)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}
