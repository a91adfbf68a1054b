package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/oauth2"

	"github.com/coreplane/coreplane/pkg/access"
	"github.com/coreplane/coreplane/pkg/api"
	"github.com/coreplane/coreplane/pkg/authn"
	"github.com/coreplane/coreplane/pkg/bus"
	"github.com/coreplane/coreplane/pkg/cache"
	"github.com/coreplane/coreplane/pkg/config"
	"github.com/coreplane/coreplane/pkg/connection"
	"github.com/coreplane/coreplane/pkg/observability"
	"github.com/coreplane/coreplane/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional; env overrides)")
	migrate := flag.Bool("migrate", true, "Run schema migrations on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		panic(err)
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		metrics = observability.NewMetrics(registry)
	}

	// Persistence
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	defer db.Close()

	if *migrate {
		if err := store.RunMigrations(context.Background(), db); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
	}
	sqlStore := store.NewSQLStore(db)

	// Cache: Redis when configured, in-process otherwise.
	var coreCache cache.Cache
	var stateStore connection.StateStore
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to connect to redis")
		}
		defer redisCache.Close()
		coreCache = redisCache
		stateStore = connection.NewRedisStateStore(redisCache, cfg.Connection.StateTTL.Std())
	} else {
		log.Warn("no redis configured; using in-process cache")
		coreCache = cache.NewMemoryCache(10000, time.Hour)
		stateStore = connection.NewMemoryStateStore(cfg.Connection.StateTTL.Std())
	}

	// Message bus
	natsConn, err := nats.Connect(cfg.Bus.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to bus")
	}
	defer natsConn.Close()

	validator := authn.NewBusValidator(natsConn, cfg.Bus.AuthSubject, cfg.Bus.RequestTimeout.Std())

	resolver := access.NewResolver(coreCache, validator, sqlStore,
		cfg.Access.ContextTTL.Std(), cfg.Access.DecisionTTL.Std(), log, metrics)

	orchestrator := connection.NewOrchestrator(sqlStore, stateStore,
		oauthConfigs(cfg.Connection.Providers), log, metrics)

	// Bus server
	busServer := bus.NewServer(natsConn, resolver, sqlStore, cfg.Bus.QueueGroup, log, metrics)
	if err := busServer.Start(); err != nil {
		log.WithError(err).Fatal("failed to start bus server")
	}
	defer busServer.Stop()

	// Stale-connection sweep
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Connection.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := orchestrator.ExpireStale(ctx, cfg.Connection.StaleAfter.Std()); err != nil {
			log.WithError(err).Warn("stale connection sweep failed")
		}
	})
	if err != nil {
		log.WithError(err).Fatal("invalid sweep schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP server
	accessHandlers := api.NewAccessHandlers(resolver, sqlStore, log)
	connectionHandlers := api.NewConnectionHandlers(orchestrator, sqlStore, log)
	apiServer := api.NewServer(accessHandlers, connectionHandlers, registry, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
		IdleTimeout:  cfg.Server.IdleTimeout.Std(),
	}

	go func() {
		log.WithField("addr", httpServer.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("http shutdown failed")
	}
}

// oauthConfigs builds the per-channel OAuth provider configurations.
func oauthConfigs(providers map[string]config.OAuthProviderConfig) map[string]*oauth2.Config {
	configs := make(map[string]*oauth2.Config, len(providers))
	for channel, p := range providers {
		configs[channel] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthURL,
				TokenURL: p.TokenURL,
			},
			RedirectURL: p.RedirectURL,
			Scopes:      p.Scopes,
		}
	}
	return configs
}
