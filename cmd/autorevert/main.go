package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/autorevert/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/autorevert/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/autorevert/internal/adapter/driving/http"
	"github.com/ericfisherdev/autorevert/internal/application"
	"github.com/ericfisherdev/autorevert/internal/config"
	"github.com/ericfisherdev/autorevert/internal/domain/model"
	"github.com/ericfisherdev/autorevert/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		policyPath string
		once       bool
		dryRun     bool
		verbose    bool
	)

	flagSet := pflag.NewFlagSet("autorevert", pflag.ContinueOnError)
	flagSet.StringVar(&policyPath, "config", "", "path to the YAML policy file (overrides AUTOREVERT_POLICY)")
	flagSet.BoolVar(&once, "once", false, "run a single analysis cycle and exit")
	flagSet.BoolVar(&dryRun, "dry-run", false, "record actions without dispatching restarts")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if policyPath != "" {
		if err := os.Setenv("AUTOREVERT_POLICY", policyPath); err != nil {
			return fmt.Errorf("set policy path: %w", err)
		}
	}

	// 1. Load configuration (fail fast on invalid values).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if !cfg.HasGitHubCredentials() && !cfg.DryRun {
		slog.Warn("no github token configured, forcing dry run")
		cfg.DryRun = true
	}
	slog.Info("config loaded",
		"repo", cfg.Repo,
		"branch", cfg.Branch,
		"workflows", cfg.Policy.WorkflowNames(),
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"lookback", cfg.Lookback,
		"dry_run", cfg.DryRun,
		"policy", cfg.PolicyPath,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "schema_version", version)

	// 5. Wire adapters.
	jobStore := sqliteadapter.NewJobRepo(db)
	actionStore := sqliteadapter.NewActionRepo(db)
	runStore := sqliteadapter.NewRunRepo(db)

	// 6. Create GitHub client. Without a token, jobs arrive only through
	// ingestion and restarts are never dispatched.
	var (
		ghClient   driven.GitHubClient
		dispatcher driven.WorkflowDispatcher
	)
	if cfg.HasGitHubCredentials() {
		client := githubadapter.NewClient(cfg.GitHubToken)
		ghClient = client
		dispatcher = client
		slog.Info("github client created", "repo", cfg.Repo)
	} else {
		slog.Info("no github credentials configured, github sync disabled")
	}

	// 7. Build the analysis pipeline.
	workflowFiles := cfg.Policy.WorkflowFiles()

	processor := application.NewSignalProcessor(
		cfg.BisectionLimit,
		cfg.Policy.Confidence.MinFailures,
		cfg.Policy.Confidence.MinSuccesses,
	)
	executor := application.NewActionExecutor(
		actionStore,
		dispatcher,
		workflowFiles,
		cfg.Policy.Restart.MaxPerCommit,
		cfg.Policy.Restart.Pacing,
	)
	svc := application.NewAutorevertService(
		ghClient,
		jobStore,
		runStore,
		processor,
		executor,
		model.UnstableSubstring(cfg.Policy.UnstableJobPatterns...),
		application.ServiceConfig{
			Repo:           cfg.Repo,
			Branch:         cfg.Branch,
			Workflows:      cfg.Policy.WorkflowNames(),
			WorkflowFiles:  workflowFiles,
			Interval:       cfg.PollInterval,
			Lookback:       cfg.Lookback,
			DryRun:         cfg.DryRun,
			SyncFromGitHub: cfg.SyncFromGitHub,
			IgnoreRules:    cfg.Policy.IgnoreClassificationRules,

			CircuitBreakerLabel:         cfg.Policy.CircuitBreaker.Label,
			CircuitBreakerApprovedUsers: cfg.Policy.CircuitBreaker.ApprovedUsers,
		},
	)

	if once {
		summary, err := svc.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cycle %s: %w", summary.RunID, err)
		}
		return nil
	}

	go svc.Start(ctx)

	// 8. Create HTTP handler.
	apiHandler := httphandler.NewHandler(jobStore, actionStore, runStore, svc, db, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httphandler.NewServeMux(apiHandler, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Manual cycles block until the cycle completes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("autorevert started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"dry_run", cfg.DryRun,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
