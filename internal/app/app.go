package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"PatchRadar/internal/catalog"
	"PatchRadar/internal/classify"
	"PatchRadar/internal/config"
	"PatchRadar/internal/infrastructure/httpapi"
	"PatchRadar/internal/infrastructure/llm"
	"PatchRadar/internal/infrastructure/memstore"
	"PatchRadar/internal/infrastructure/metrics"
	"PatchRadar/internal/infrastructure/parser"
	"PatchRadar/internal/infrastructure/push"
	"PatchRadar/internal/infrastructure/scheduler"
	"PatchRadar/internal/infrastructure/storage"
	"PatchRadar/internal/logging"
	"PatchRadar/internal/ports"
	"PatchRadar/internal/rules"
	"PatchRadar/internal/scanner"
	"PatchRadar/internal/usecase"
)

// Task names, in execution order within a cycle.
const (
	TaskDiscoverGames        = "discoverGames"
	TaskFetchContent         = "fetchContent"
	TaskProcessEnrichment    = "processEnrichment"
	TaskProcessNotifications = "processNotifications"
	TaskRetention            = "retention"
	TaskSyncCatalog          = "syncCatalog"
)

type repositories struct {
	games         ports.GameRepository
	content       ports.ContentRepository
	jobs          ports.JobRepository
	subscribers   ports.SubscriberRepository
	notifications ports.NotificationRepository
	endpoints     ports.EndpointRepository
	close         func()
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	repos       repositories
	maintenance *usecase.Maintenance
	scheduler   *usecase.Scheduler
	server      *httpapi.Server
}

// New builds the application: storage, adapters, pipeline stages and the task table.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repos, err := openRepositories(ctx, cfg.Database, baseLogger)
	if err != nil {
		return nil, err
	}

	recorder := metrics.New()
	httpClient := &http.Client{Timeout: cfg.Ingestion.ItemTimeout}
	fetcher := parser.NewFetcher(httpClient, cfg.Ingestion.UserAgent, cfg.Ingestion.HostInterval)
	classifier := classify.NewKeyword(nil, nil)

	registry := scanner.NewRegistry()
	registry.Register(parser.NewSteamScanner(fetcher, classifier, cfg.Steam.APIBase, cfg.Steam.NewsCount))
	registry.Register(parser.NewRedditScanner(fetcher, classifier, cfg.Reddit.APIBase, cfg.Reddit.Query, cfg.Reddit.Limit))
	registry.Register(parser.NewRSSScanner(fetcher, classifier))
	source := parser.NewStrategySource(registry, cfg.Sources, cfg.Ingestion.Concurrency, cfg.Ingestion.ItemTimeout,
		baseLogger.With("component", "source"))

	cat := catalog.New(nil)
	gate := usecase.NewGate(repos.content, cat, cfg.Ingestion, recorder, baseLogger.With("component", "gate"))
	ingestor := usecase.NewIngestor(repos.games, source, gate, cfg.Ingestion, baseLogger.With("component", "ingest"))

	var (
		completer  ports.Completer
		summarizer ports.Summarizer
	)
	if cfg.LLM.APIKey != "" {
		client := llm.NewChatGPTClient(cfg.LLM)
		completer = client
		summarizer = llm.NewSummarizer(client)
	} else {
		baseLogger.Warn("llm api key missing, summaries and notification text use templates")
	}
	worker := usecase.NewEnrichmentWorker(repos.content, repos.jobs, summarizer, cfg.Enrichment, recorder,
		baseLogger.With("component", "enrichment"))

	channels, err := buildChannels(cfg.Push, baseLogger)
	if err != nil {
		repos.close()
		return nil, err
	}
	dispatcher := usecase.NewDispatcher(repos.endpoints, channels, cfg.Notifications.LinkBaseURL, recorder,
		baseLogger.With("component", "dispatch"))
	processor := usecase.NewNotificationProcessor(usecase.NotifyDeps{
		Content:     repos.content,
		Games:       repos.games,
		Subscribers: repos.subscribers,
		Endpoints:   repos.endpoints,
		Engine:      rules.NewEngine(baseLogger.With("component", "rules")),
		Composer:    usecase.NewComposer(completer, repos.notifications, baseLogger.With("component", "composer")),
		Dispatcher:  dispatcher,
		Config:      cfg.Notifications,
		Logger:      baseLogger.With("component", "notify"),
	})

	directory := parser.NewSteamDirectory(fetcher, cfg.Steam.APIBase, cfg.Steam.StoreBase, baseLogger.With("component", "directory"))
	maintenance := usecase.NewMaintenance(repos.games, repos.notifications, directory, cat,
		cfg.Steam.DiscoveryLimit, cfg.Notifications.RetentionDays, baseLogger.With("component", "maintenance"))

	tasks := buildTasks(cfg, ingestor, worker, processor, maintenance)
	driver := scheduler.NewTickerScheduler(cfg.Scheduler.TickInterval, false)
	sched := usecase.NewScheduler(tasks, cfg.Scheduler.Location(), driver, recorder, baseLogger.With("component", "scheduler"))
	server := httpapi.NewServer(cfg.Server, sched, recorder.Handler(), baseLogger.With("component", "http"))

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		repos:       repos,
		maintenance: maintenance,
		scheduler:   sched,
		server:      server,
	}, nil
}

func openRepositories(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repositories, error) {
	if cfg.Driver == config.StorageMemory {
		store := memstore.New()
		return repositories{
			games:         store.Games(),
			content:       store.Contents(),
			jobs:          store.Jobs(),
			subscribers:   store.Subscribers(),
			notifications: store.Notifications(),
			endpoints:     store.Endpoints(),
			close:         func() {},
		}, nil
	}

	pool, err := storage.NewPool(ctx, cfg)
	if err != nil {
		return repositories{}, err
	}
	if cfg.AutoMigrate {
		if err := storage.Migrate(ctx, pool, logger.With("component", "migrate")); err != nil {
			pool.Close()
			return repositories{}, err
		}
	}
	return repositories{
		games:         storage.NewGameRepository(pool),
		content:       storage.NewContentRepository(pool),
		jobs:          storage.NewJobRepository(pool),
		subscribers:   storage.NewSubscriberRepository(pool),
		notifications: storage.NewNotificationRepository(pool),
		endpoints:     storage.NewEndpointRepository(pool),
		close:         pool.Close,
	}, nil
}

func buildChannels(cfg config.PushConfig, logger *slog.Logger) ([]ports.Channel, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	var channels []ports.Channel
	if cfg.WebPush.Enabled() {
		channels = append(channels, push.NewWebPushChannel(cfg.WebPush, client, logger.With("component", "webpush")))
	} else {
		logger.Warn("web push disabled, vapid keys missing")
	}
	if cfg.APNs.Enabled() {
		apns, err := push.NewAPNsChannel(cfg.APNs, client, logger.With("component", "apns"))
		if err != nil {
			return nil, fmt.Errorf("apns channel: %w", err)
		}
		channels = append(channels, apns)
	} else {
		logger.Warn("native push disabled, apns credentials missing")
	}
	return channels, nil
}

func buildTasks(cfg config.Config, ingestor *usecase.Ingestor, worker *usecase.EnrichmentWorker,
	processor *usecase.NotificationProcessor, maintenance *usecase.Maintenance) []usecase.Task {
	daily := usecase.DailyAt(cfg.Scheduler.DailyHour)
	return []usecase.Task{
		{Name: TaskDiscoverGames, Due: usecase.EveryNthHour(cfg.Scheduler.DiscoveryEveryHours),
			Run: func(ctx context.Context, _ time.Time) (any, error) { return maintenance.DiscoverGames(ctx) }},
		{Name: TaskFetchContent, Due: usecase.EveryCycle(),
			Run: func(ctx context.Context, now time.Time) (any, error) { return ingestor.Run(ctx, now) }},
		{Name: TaskProcessEnrichment, Due: usecase.EveryCycle(),
			Run: func(ctx context.Context, _ time.Time) (any, error) { return worker.Drain(ctx, cfg.Enrichment.BatchSize) }},
		{Name: TaskProcessNotifications, Due: usecase.EveryCycle(),
			Run: func(ctx context.Context, now time.Time) (any, error) { return processor.Process(ctx, now) }},
		{Name: TaskRetention, Due: daily,
			Run: func(ctx context.Context, now time.Time) (any, error) { return maintenance.Retention(ctx, now) }},
		{Name: TaskSyncCatalog, Due: daily,
			Run: func(ctx context.Context, _ time.Time) (any, error) { return maintenance.SyncCatalog(ctx) }},
	}
}

// Bootstrap seeds configured games and loads the alias catalog.
func (a *Application) Bootstrap(ctx context.Context) error {
	added, err := a.maintenance.SeedGames(ctx, a.cfg.Games)
	if err != nil {
		return err
	}
	n, err := a.maintenance.SyncCatalog(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("catalog loaded", "games", n, "seeded", added)
	return nil
}

// RunOnce executes a single scheduler cycle and returns its report.
func (a *Application) RunOnce(ctx context.Context) usecase.CycleReport {
	return a.scheduler.RunCycle(ctx, time.Now())
}

// Serve runs the HTTP trigger and, when enabled, the internal ticker until ctx ends.
func (a *Application) Serve(ctx context.Context, withTicker bool) error {
	if withTicker {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(gctx) })
	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if withTicker {
		if stopErr := a.scheduler.Stop(stopCtx); stopErr != nil {
			a.logger.Warn("scheduler stop", "error", stopErr)
		}
	}
	return err
}

// Close releases storage resources.
func (a *Application) Close() {
	a.repos.close()
}
