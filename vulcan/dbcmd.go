package vulcan

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SoftKiwiGames/vulcan/vulcan/db"
	"github.com/SoftKiwiGames/vulcan/vulcan/ui"
)

const listLimit = 50

func (v *Vulcan) buildDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect the submit database",
	}

	var submitID string
	jobsCmd := &cobra.Command{
		Use:           "jobs",
		Short:         "List build jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runDBJobs(submitID)
		},
	}
	jobsCmd.Flags().StringVar(&submitID, "submit", "", "Only list jobs of this submit")

	cmd.AddCommand(
		&cobra.Command{
			Use:           "setup",
			Short:         "Create the database schema",
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return v.withDB(func(ctx context.Context, database *db.DB) error {
					if err := database.EnsureSchema(ctx); err != nil {
						return err
					}
					v.out.Success("database schema is ready")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:           "submits",
			Short:         "List submits",
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return v.runDBSubmits()
			},
		},
		jobsCmd,
		&cobra.Command{
			Use:           "log [job-uuid]",
			Short:         "Print the build log of a job",
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return v.runDBLog(args[0])
			},
		},
	)

	return cmd
}

func (v *Vulcan) withDB(fn func(ctx context.Context, database *db.DB) error) error {
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, db.ConnConfigFromSchema(cfg.Database))
	if err != nil {
		return err
	}
	defer database.Close()

	return fn(ctx, database)
}

func (v *Vulcan) runDBSubmits() error {
	return v.withDB(func(ctx context.Context, database *db.DB) error {
		submits, err := database.ListSubmits(ctx, listLimit)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(submits))
		for _, s := range submits {
			head := s.RepoHead
			if head != "" && !s.RepoClean {
				head += " (dirty)"
			}
			rows = append(rows, []any{s.ID, s.Time.Format("2006-01-02 15:04:05"), s.Package, s.Version, head})
		}

		ui.Table(v.stdout, []any{"ID", "Time", "Package", "Version", "Repo Head"}, rows)
		return nil
	})
}

func (v *Vulcan) runDBJobs(submitID string) error {
	submit := uuid.Nil
	if submitID != "" {
		parsed, err := uuid.Parse(submitID)
		if err != nil {
			return fmt.Errorf("invalid submit id %q: %w", submitID, err)
		}
		submit = parsed
	}

	return v.withDB(func(ctx context.Context, database *db.DB) error {
		jobs, err := database.ListJobs(ctx, submit, listLimit)
		if err != nil {
			return err
		}

		rows := make([][]any, 0, len(jobs))
		for _, j := range jobs {
			status := "failed"
			if j.Success {
				status = "ok"
			}
			rows = append(rows, []any{j.ID, j.Time.Format("2006-01-02 15:04:05"), j.Package, j.Version, j.Endpoint, status})
		}

		ui.Table(v.stdout, []any{"ID", "Time", "Package", "Version", "Endpoint", "Status"}, rows)
		return nil
	})
}

func (v *Vulcan) runDBLog(jobID string) error {
	id, err := uuid.Parse(jobID)
	if err != nil {
		return fmt.Errorf("invalid job id %q: %w", jobID, err)
	}

	return v.withDB(func(ctx context.Context, database *db.DB) error {
		log, err := database.JobLog(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprint(v.stdout, log)
		return nil
	})
}
