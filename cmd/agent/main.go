package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/garnizeh/talentflow/api"
	dbfs "github.com/garnizeh/talentflow/db"
	"github.com/garnizeh/talentflow/internal/analyzer"
	"github.com/garnizeh/talentflow/internal/config"
	"github.com/garnizeh/talentflow/internal/db"
	"github.com/garnizeh/talentflow/internal/dispatch"
	"github.com/garnizeh/talentflow/internal/ingest"
	"github.com/garnizeh/talentflow/internal/jobs"
	"github.com/garnizeh/talentflow/internal/lifecycle"
	"github.com/garnizeh/talentflow/internal/orchestrator"
	"github.com/garnizeh/talentflow/internal/pipeline"
	"github.com/garnizeh/talentflow/internal/repository/sqlite"
	"github.com/garnizeh/talentflow/internal/retrieval"
	"github.com/garnizeh/talentflow/internal/scheduler"
	"github.com/garnizeh/talentflow/pkg/flowise"
	"github.com/garnizeh/talentflow/pkg/ollama"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	api.SetLogger(logger)
	flowise.SetLogger(logger)
	ollama.SetLogger(logger)

	logger.Info("starting talentflow agent", "version", version, "build_time", buildTime)

	// One agent per database. A second instance would double-send outreach.
	lock := flock.New(cfg.DatabasePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("Failed to acquire instance lock: %v", err)
	}
	if !locked {
		log.Fatalf("Another agent instance holds %s.lock", cfg.DatabasePath)
	}
	defer lock.Unlock()

	ctx := context.Background()

	database, err := db.New(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, database, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	repo := sqlite.New(database, logger)
	agg := repo.Aggregate()

	profile, err := config.LoadProfiles(cfg.ProfilePath, cfg.ProfileID)
	if err != nil {
		log.Fatalf("Failed to load profile: %v", err)
	}

	engine, err := flowise.NewDefaultClient(cfg.Flowise)
	if err != nil {
		log.Fatalf("Failed to build flowise client: %v", err)
	}

	embedder, err := ollama.NewDefaultClient(cfg.Ollama)
	if err != nil {
		log.Fatalf("Failed to build ollama client: %v", err)
	}

	index := retrieval.New(embedder, retrieval.DefaultTopK, logger)
	if items, err := retrieval.LoadCorpusFile(cfg.CorpusPath); err != nil {
		logger.Warn("portfolio corpus unavailable, grounding disabled", "path", cfg.CorpusPath, "error", err)
	} else if err := index.Load(ctx, items); err != nil {
		logger.Warn("portfolio corpus embedding failed, grounding disabled", "error", err)
	} else {
		logger.Info("portfolio corpus loaded", "items", index.Size())
	}

	an, err := analyzer.New(ctx, engine, analyzer.Options{FlowID: cfg.Flowise.AnalysisFlowID}, repo, repo, index, logger)
	if err != nil {
		log.Fatalf("Failed to build analyzer: %v", err)
	}
	orch, err := orchestrator.New(ctx, engine, orchestrator.Options{FlowID: cfg.Flowise.ResponseFlowID}, repo, repo, repo, logger)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	mgr := lifecycle.New(repo, logger)
	queue := jobs.NewRepository(database)

	sender := buildSender(cfg, logger)
	channels := buildChannels(cfg, logger)
	disp := dispatch.New(sender, repo, repo, mgr, queue, channels, logger)

	pool := jobs.NewWorkerPool(queue, disp.Handlers(), logger, cfg.Dispatch.Workers)

	linker := &dispatch.MeetingLinker{BaseURL: cfg.Dispatch.CalendlyURL, Logger: logger}
	sources := buildSources(cfg)

	pipe := pipeline.New(agg, an, orch, mgr, disp, linker, profile, sources, pipeline.Options{
		Workers:       cfg.Sweep.Workers,
		PostingBudget: cfg.Sweep.PostingBudget,
		SourceTimeout: cfg.Sweep.SourceTimeout,
	}, logger)

	sweeper := scheduler.New(cfg.Sweep.Interval, func(ctx context.Context) {
		if _, err := pipe.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Error("sweep failed", "error", err)
		}
	}, logger)

	handler := api.SetupRoutes(cfg, version, buildTime, api.Deps{
		Repo:      agg,
		Queue:     queue,
		Lifecycle: mgr,
		Notifier:  disp,
		Rean:      pipe,
		Reloaders: []api.SchemaReloader{an, orch},
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)

	pool.Start(runCtx)
	go sweeper.Run(runCtx)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	stop()
	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := database.Close(); err != nil {
		logger.Error("close db", "error", err)
	}
	logger.Info("agent exited")
}

func buildSender(cfg *config.Config, logger *slog.Logger) dispatch.ResponseSender {
	if cfg.Dispatch.Mode == "email" {
		s := cfg.Dispatch.SMTP
		return &dispatch.EmailSender{
			Addr:     s.Addr,
			From:     s.From,
			Username: s.Username,
			Password: s.Password,
			Host:     s.Host,
		}
	}
	return &dispatch.LogSender{Logger: logger}
}

func buildChannels(cfg *config.Config, logger *slog.Logger) []dispatch.Channel {
	var channels []dispatch.Channel
	if cfg.Notify.SlackWebhookURL != "" {
		channels = append(channels, &dispatch.SlackChannel{WebhookURL: cfg.Notify.SlackWebhookURL})
	}
	if cfg.Notify.EmailTo != "" && cfg.Dispatch.SMTP.Addr != "" {
		s := cfg.Dispatch.SMTP
		channels = append(channels, &dispatch.EmailChannel{
			Addr:     s.Addr,
			From:     s.From,
			To:       cfg.Notify.EmailTo,
			Username: s.Username,
			Password: s.Password,
			Host:     s.Host,
		})
	}
	if cfg.Notify.LogEnabled() {
		channels = append(channels, &dispatch.LogChannel{Logger: logger})
	}
	return channels
}

func buildSources(cfg *config.Config) []ingest.Source {
	limiter := ingest.NewHostLimiter(cfg.Sweep.RatePerHost, 1)
	var sources []ingest.Source
	for _, s := range cfg.Sources {
		sources = append(sources, &ingest.JSONFeedSource{
			SourceName: s.Name,
			FeedURL:    s.URL,
			Platform:   s.Platform,
			Limiter:    limiter,
			Timeout:    cfg.Sweep.SourceTimeout,
		})
	}
	return sources
}
