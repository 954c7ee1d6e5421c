package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/api"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/config"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/database"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/health"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/jellyfin"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/library"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/librarysync"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/logger"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/progress"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/refresh"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/scheduler/tasks"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/startup"
	"github.com/Sanidhya30/jellyfin-plugin-refreshsparse/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to config file")
	seedPath := flag.String("seed", "", "YAML library snapshot to load into the store at startup")
	flag.Parse()

	if err := run(*configPath, *seedPath); err != nil {
		fmt.Fprintf(os.Stderr, "refreshsparse: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, seedPath string) error {
	cfg, src, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", version).
		Str("logLevel", cfg.Logging.Level).
		Str("configFile", src.ConfigFile()).
		Msg("starting refreshsparse")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	log.Info().Str("path", db.Path()).Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	store := library.NewStore(db.Conn(), log.Logger)

	if seedPath != "" {
		n, err := store.LoadSeedFile(ctx, seedPath)
		if err != nil {
			return fmt.Errorf("failed to load seed file: %w", err)
		}
		log.Info().Str("path", seedPath).Int("items", n).Msg("loaded seed file")
	}

	hub := websocket.NewHub(log.Logger)
	log.SetBroadcastHub(hub)
	progressManager := progress.NewManager(hub, log.Logger)

	healthService := health.NewService(hub, log.Logger)
	healthHandlers := health.NewHandlers(healthService)
	healthService.RegisterItem(health.CategoryStorage, "database", "Library database")
	healthHandlers.SetCheck(health.CategoryStorage, "database", db.Conn().PingContext)

	var refresher refresh.Refresher = refresh.NewDryRunRefresher(log.Logger)
	var client *jellyfin.Client
	if cfg.Jellyfin.Enabled() {
		client, err = jellyfin.NewClient(cfg.Jellyfin, nil, log.Logger)
		if err != nil {
			return err
		}
		refresher = jellyfin.NewRefresher(client, store, log.Logger)

		healthService.RegisterItem(health.CategoryMediaServer, "jellyfin", "Jellyfin")
		healthHandlers.SetCheck(health.CategoryMediaServer, "jellyfin", func(ctx context.Context) error {
			_, err := client.Ping(ctx)
			return err
		})
		go pingJellyfin(ctx, client, healthService, log)
	} else {
		log.Warn().Msg("jellyfin.url is not set, refreshes are logged but not sent")
	}

	sched, err := scheduler.New(log.Logger, progressManager)
	if err != nil {
		return err
	}

	images := library.NewImageChecker()
	evaluators := []*refresh.KindEvaluator{
		refresh.NewMovieEvaluator(src, images),
		refresh.NewSeriesEvaluator(src, images),
		refresh.NewEpisodeEvaluator(src, images),
	}
	crons := map[library.Kind]string{
		library.KindMovie:   cfg.Scheduler.RefreshMoviesCron,
		library.KindSeries:  cfg.Scheduler.RefreshSeriesCron,
		library.KindEpisode: cfg.Scheduler.RefreshEpisodesCron,
	}

	refreshTasks := make([]*refresh.Task, 0, len(evaluators))
	for _, e := range evaluators {
		task := refresh.NewTask(e, store, src, refresher, log.Logger)
		refreshTasks = append(refreshTasks, task)
		if err := tasks.RegisterRefreshSparseTask(sched, task, crons[e.Kind()], cfg.Scheduler.RunOnStart); err != nil {
			return err
		}
	}

	if client != nil {
		syncer := librarysync.NewSyncer(client, store, cfg.Jellyfin.FetchImagePaths, log.Logger)
		if err := tasks.RegisterLibrarySyncTask(sched, syncer, cfg.Scheduler.LibrarySyncCron, cfg.Scheduler.RunOnStart); err != nil {
			return err
		}
	}

	for _, info := range sched.ListTasks() {
		healthService.RegisterItem(health.CategoryTasks, info.ID, info.Name)
	}
	sched.SetRunHook(func(taskID string, rec scheduler.RunRecord) {
		switch rec.Status {
		case scheduler.RunStatusFailed:
			healthService.SetError(health.CategoryTasks, taskID, rec.Error)
		case scheduler.RunStatusCancelled:
			healthService.SetWarning(health.CategoryTasks, taskID, "last run was cancelled")
		default:
			healthService.ClearStatus(health.CategoryTasks, taskID)
		}
	})

	hub.SetTaskCommands(sched)

	server := api.NewServer(api.Deps{
		Scheduler: sched,
		Progress:  progressManager,
		Hub:       hub,
		Logs:      log,
		Refresh:   refresh.NewHandlers(store, refreshTasks...),
		Health:    healthHandlers,
		Items:     store,
		Version:   version,
		DryRun:    client == nil,
		Jellyfin:  cfg.Jellyfin.URL,
	}, log.Logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		addr := cfg.Server.Address()
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if err := sched.Start(); err != nil {
		log.Error().Err(err).Msg("failed to start scheduler")
		stop()
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		if err := sched.Stop(); err != nil {
			log.Error().Err(err).Msg("scheduler shutdown error")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("stopped")
	return err
}

// pingJellyfin logs whether the media server is reachable, retrying while it
// starts up. Tasks still run if it never answers; their requests fail per item.
func pingJellyfin(ctx context.Context, client *jellyfin.Client, hs *health.Service, log *logger.Logger) {
	l := log.WithComponent("startup")
	err := startup.WithRetry(ctx, "jellyfin ping", startup.DefaultRetryConfig(), func(ctx context.Context) error {
		info, err := client.Ping(ctx)
		if err != nil {
			hs.SetError(health.CategoryMediaServer, "jellyfin", err.Error())
			return err
		}
		hs.ClearStatus(health.CategoryMediaServer, "jellyfin")
		l.Info().
			Str("server", info.ServerName).
			Str("version", info.Version).
			Msg("connected to jellyfin")
		return nil
	}, l)
	if err != nil && ctx.Err() == nil {
		l.Warn().Err(err).Msg("jellyfin is unreachable, refreshes will fail until it responds")
	}
}
