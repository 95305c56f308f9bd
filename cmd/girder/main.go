// Command girder runs the authorization and audit core: the HTTP API,
// the realtime propagation channel, and a separate health/metrics
// server for probes.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/girderhq/girder/pkg/audit"
	"github.com/girderhq/girder/pkg/config"
	"github.com/girderhq/girder/pkg/httpapi"
	"github.com/girderhq/girder/pkg/members"
	"github.com/girderhq/girder/pkg/notify"
	"github.com/girderhq/girder/pkg/observability"
	"github.com/girderhq/girder/pkg/postgres"
	"github.com/girderhq/girder/pkg/rbac"
	"github.com/girderhq/girder/pkg/realtime"
	"github.com/girderhq/girder/pkg/tenants"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "girder: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Observability.LogLevel), os.Stdout)
	logger.Info("starting girder")

	ctx := context.Background()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Redis is optional: without it, fan-out stays instance-local and
	// the invite rate limiter is off.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing without it")
			redisClient = nil
		}
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	catalog := rbac.DefaultCatalog()
	roleRegistry := rbac.NewRegistry(catalog)
	if cfg.Authorization.RoleOverlayPath != "" {
		if err := roleRegistry.LoadOverlay(cfg.Authorization.RoleOverlayPath); err != nil {
			return fmt.Errorf("failed to load role overlay: %w", err)
		}
		if err := roleRegistry.Watch(cfg.Authorization.RoleOverlayPath, func(err error) {
			logger.WithError(err).Error("role overlay reload failed")
		}); err != nil {
			logger.WithError(err).Warn("role overlay watch unavailable")
		}
		defer roleRegistry.Close()
	}

	memberStore := members.NewStore(db)
	overrideStore := rbac.NewOverrideStore(db)
	resolver := rbac.NewResolver(memberStore, overrideStore, roleRegistry, catalog, logger, metrics)

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	defer auditLogger.Close()
	actorNames := func(ctx context.Context, userID int64) (string, error) {
		u, err := memberStore.GetUser(ctx, userID)
		if err != nil {
			return "", err
		}
		return u.DisplayName, nil
	}
	recorder := audit.NewRecorder(auditLogger, actorNames, logger, metrics)

	notifier := notify.NewLogNotifier(nil)

	hub := realtime.NewHub(logger, metrics)
	var broadcaster realtime.Broadcaster
	if redisClient != nil {
		broadcaster = realtime.NewRedisBroadcaster(redisClient, logger)
	}
	propagator := realtime.NewPropagator(hub, broadcaster, logger, metrics)

	limiter := members.NewInviteRateLimiter(redisClient, cfg.Authorization.InviteRateLimit, cfg.Authorization.InviteRateWindow)

	tenantService := tenants.NewService(tenants.NewStore(db), resolver, recorder, notifier, logger)
	memberService := members.NewService(memberStore, resolver, roleRegistry, recorder, notifier, propagator, limiter, members.ServiceConfig{
		AllowSelfDemotion: cfg.Authorization.AllowSelfDemotion,
		LastAdminGuard:    cfg.Authorization.LastAdminGuard,
		InviteTTL:         cfg.Authorization.InviteTTL,
	}, logger, metrics)

	// Expired invitations age out on a schedule.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@hourly", func() {
		if _, err := memberService.CleanupExpiredInvitations(context.Background()); err != nil {
			logger.WithError(err).Error("invitation cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule invitation cleanup: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiServer := httpapi.NewServer(tenantService, memberService, resolver, overrideStore, recorder, hub, logger, metrics)
	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := propagator.Run(groupCtx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	shutdown.Register(func(context.Context) error {
		cancel()
		hub.Close()
		if broadcaster != nil {
			return broadcaster.Close()
		}
		return nil
	})

	group.Go(func() error {
		return shutdown.Wait()
	})

	return group.Wait()
}
