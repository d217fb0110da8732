package vulcan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wzshiming/ctc"

	"github.com/SoftKiwiGames/vulcan/config"
	"github.com/SoftKiwiGames/vulcan/vulcan/ctxlog"
	"github.com/SoftKiwiGames/vulcan/vulcan/dag"
	"github.com/SoftKiwiGames/vulcan/vulcan/db"
	"github.com/SoftKiwiGames/vulcan/vulcan/endpoint"
	"github.com/SoftKiwiGames/vulcan/vulcan/gitutil"
	"github.com/SoftKiwiGames/vulcan/vulcan/job"
	"github.com/SoftKiwiGames/vulcan/vulcan/orchestrator"
	"github.com/SoftKiwiGames/vulcan/vulcan/pkgs"
	"github.com/SoftKiwiGames/vulcan/vulcan/repo"
	"github.com/SoftKiwiGames/vulcan/vulcan/schema"
	"github.com/SoftKiwiGames/vulcan/vulcan/source"
	"github.com/SoftKiwiGames/vulcan/vulcan/ssh"
	"github.com/SoftKiwiGames/vulcan/vulcan/store"
	"github.com/SoftKiwiGames/vulcan/vulcan/ui"
)

type Vulcan struct {
	stdout *os.File
	stderr *os.File
	out    *ui.Output

	configPath string
	verbose    bool
}

func New(stdout, stderr *os.File) *Vulcan {
	return &Vulcan{
		stdout: stdout,
		stderr: stderr,
		out:    ui.NewOutput(stdout, stderr),
	}
}

func (v *Vulcan) Run() {
	rootCmd := &cobra.Command{
		Use:     "vulcan",
		Short:   "Vulcan - Package build orchestrator",
		Long:    "Vulcan resolves a package dependency graph and builds it bottom-up on remote build endpoints.",
		Version: config.Version,
	}

	rootCmd.PersistentFlags().StringVarP(&v.configPath, "config", "c", "vulcan.yaml", "Path to the vulcan config file")
	rootCmd.PersistentFlags().BoolVar(&v.verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(
		v.buildBuildCommand(),
		v.buildTreeOfCommand(),
		v.buildEndpointsCommand(),
		v.buildDBCommand(),
		v.buildSourceCommand(),
		v.buildInitCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(v.stderr, "%sError:%s %v\n", ctc.ForegroundRed, ctc.Reset, err)
		os.Exit(1)
	}
}

// context returns the command context with a logger attached. Debug logging
// goes to stderr so it does not interfere with progress rendering on stdout.
func (v *Vulcan) context() context.Context {
	level := slog.LevelWarn
	if v.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(v.stderr, &slog.HandlerOptions{Level: level}))
	return ctxlog.WithLogger(context.Background(), logger)
}

func (v *Vulcan) loadConfig() (*schema.Config, error) {
	return schema.LoadConfig(v.configPath)
}

// resolveRoot loads the package repository and picks the root package for a
// command: exact version when given, highest known version otherwise.
func (v *Vulcan) resolveRoot(ctx context.Context, cfg *schema.Config, name, version string) (*repo.Repository, *schema.Package, error) {
	repository, err := repo.Load(ctx, cfg.Repository)
	if err != nil {
		return nil, nil, err
	}

	constraint, err := pkgs.ParseConstraint(version)
	if err != nil {
		return nil, nil, err
	}

	root, err := repository.Find(pkgs.Name(name), constraint)
	if err != nil {
		return nil, nil, err
	}

	return repository, root, nil
}

func (v *Vulcan) buildBuildCommand() *cobra.Command {
	var (
		version  string
		envVars  []string
		dryRun   bool
		parallel string
	)

	cmd := &cobra.Command{
		Use:           "build [package]",
		Short:         "Build a package and everything it depends on",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return v.runBuild(args[0], version, envVars, dryRun, parallel)
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Package version to build (default: highest known)")
	cmd.Flags().StringSliceVarP(&envVars, "env", "e", nil, "Environment variables (KEY=VALUE)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the job plan without building")
	cmd.Flags().StringVar(&parallel, "parallel", "", "How many jobs run at once (number or percentage, overrides config)")

	return cmd
}

func (v *Vulcan) runBuild(name, version string, envVars []string, dryRun bool, parallel string) error {
	started := time.Now()
	ctx := v.context()

	cfg, err := v.loadConfig()
	if err != nil {
		return err
	}

	repository, root, err := v.resolveRoot(ctx, cfg, name, version)
	if err != nil {
		return err
	}

	d, err := dag.Build(ctx, repository, root)
	if err != nil {
		return err
	}
	specs, err := d.JobSpecs()
	if err != nil {
		return err
	}

	env, err := v.parseEnvVars(envVars)
	if err != nil {
		return err
	}
	env, err = schema.ExpandEnv(env)
	if err != nil {
		return err
	}

	cache := source.NewCache(cfg.SourceCache)

	if dryRun {
		return v.printPlan(cfg, d, specs, cache, env)
	}

	packages, err := d.Packages()
	if err != nil {
		return err
	}
	for _, p := range packages {
		if err := cache.Ensure(ctx, p); err != nil {
			return err
		}
	}

	staging, err := store.Load(cfg.Stores.Staging)
	if err != nil {
		return err
	}
	release, err := store.Load(cfg.Stores.Release)
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, db.ConnConfigFromSchema(cfg.Database))
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return err
	}

	submit := db.Submit{
		ID:      uuid.New(),
		Time:    started,
		Package: string(root.Name),
		Version: string(root.Version),
	}
	if head, err := gitutil.HeadHash(cfg.Repository); err == nil {
		submit.RepoHead = head
		clean, err := gitutil.IsClean(cfg.Repository)
		if err != nil {
			return err
		}
		submit.RepoClean = clean
	} else {
		v.out.Warning("package repository is not a git repository, submit will not be tagged")
	}
	if err := database.CreateSubmit(ctx, submit); err != nil {
		return err
	}

	sshClient := ssh.NewClient()
	defer sshClient.Close()

	scheduler, err := endpoint.NewScheduler(endpoint.SchedulerSetup{
		Endpoints: cfg.Endpoints,
		Client:    sshClient,
		Staging:   staging,
		Release:   release,
		Recorder:  database,
		SubmitID:  submit.ID,
		LogDir:    cfg.LogDir,
	})
	if err != nil {
		return err
	}

	if parallel == "" {
		parallel = cfg.Parallel
	}
	limit, err := orchestrator.ParseLimit(parallel, scheduler.TotalSlots())
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Setup{
		Scheduler: orchestrator.WrapScheduler(scheduler),
		Finder:    database,
		Stores:    store.Merged{Staging: staging, Release: release},
		Cache:     cache,
		Shebang:   cfg.ScriptShebang(),
		ExtraEnv:  env,
		Bars:      ui.NewProgressBars(v.stdout, v.verbose),
		Parallel:  limit,
		Specs:     specs,
	})
	if err != nil {
		return err
	}

	v.out.SubmitStarted(root.ID(), submit.ID.String(), len(specs))

	artifacts, jobErrs, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	if len(jobErrs) > 0 {
		failed := make(map[string]error, len(jobErrs))
		for id, jobErr := range jobErrs {
			failed[id.String()] = jobErr
		}
		v.out.SubmitFailed(failed)
		return fmt.Errorf("submit failed")
	}

	for _, a := range artifacts {
		v.out.Info("  %s", staging.FullPath(a))
	}
	v.out.SubmitCompleted(len(artifacts), time.Since(started))
	return nil
}

// printPlan renders what a submit would do, without touching endpoints,
// stores or the database.
func (v *Vulcan) printPlan(cfg *schema.Config, d *dag.DAG, specs []job.Spec, cache *source.Cache, env map[string]string) error {
	root := d.Root()
	v.out.DryRunHeader(root.ID())

	for _, spec := range specs {
		runnable, err := job.NewRunnable(spec, cache, cfg.ScriptShebang(), env, nil)
		if err != nil {
			return err
		}

		v.out.Section(fmt.Sprintf("%s (job %s)", spec.Package.ID(), spec.UUID))
		if len(spec.Dependencies) > 0 {
			v.out.Info("depends on %d job(s)", len(spec.Dependencies))
		}
		v.out.Info("%s", runnable.Script)
	}

	names := make([]string, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		names = append(names, ep.Name)
	}
	v.out.Section("Endpoints")
	v.out.Info("%s", strings.Join(names, ", "))

	return nil
}

func (v *Vulcan) parseEnvVars(envVars []string) (map[string]string, error) {
	env := make(map[string]string)
	for _, ev := range envVars {
		parts := strings.SplitN(ev, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid environment variable format: %s (expected KEY=VALUE)", ev)
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}
