package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/primebank/primebank-web/handlers"
	"github.com/primebank/primebank-web/internal/config"
	"github.com/primebank/primebank-web/internal/graphql"
	"github.com/primebank/primebank-web/internal/session"
	"github.com/primebank/primebank-web/internal/storage"
	"github.com/primebank/primebank-web/internal/tabs"
	"github.com/primebank/primebank-web/pkg/logger"
	"github.com/primebank/primebank-web/pkg/metrics"
	"github.com/primebank/primebank-web/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var startTime = time.Now()

func main() {
	// initialize logging (LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: graphql=%s storage=%s redis=%v", cfg.GraphQL.URL, cfg.Session.Storage, cfg.NeedsRedis())

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
		} else {
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
		}
		defer rdb.Close()
	}

	registry := tabs.NewRegistry(newTabFactory(cfg, rdb), cfg.Session.IdleTimeout)
	defer registry.Close()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(cfg, registry, rdb)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go registry.Run(ctx, time.Minute)

	go func() {
		logger.Infof("starting front server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown error: %v", err)
	}
	registry.Close()
	logger.Infof("server stopped")
}

// newTabFactory builds one coordinator per tab: its own GraphQL client (and
// cookie jar) over a storage area of the configured kind.
func newTabFactory(cfg *config.Config, rdb *redis.Client) tabs.Factory {
	schedCfg := session.SchedulerConfig{Lead: cfg.Refresh.Lead, Fallback: cfg.Refresh.Fallback}
	return func(ctx context.Context, id string) (*session.Coordinator, error) {
		client, err := graphql.NewClient(cfg.GraphQL.URL,
			graphql.WithTimeout(cfg.GraphQL.Timeout),
			graphql.WithAuthPrefix(cfg.GraphQL.AuthPrefix),
		)
		if err != nil {
			return nil, err
		}
		area, err := newArea(cfg, rdb, id)
		if err != nil {
			return nil, err
		}
		return session.NewCoordinator(ctx, client, area, schedCfg), nil
	}
}

func newArea(cfg *config.Config, rdb *redis.Client, id string) (storage.Area, error) {
	switch cfg.Session.Storage {
	case config.StorageRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis storage configured without a client")
		}
		return storage.NewRedisArea(rdb, "primebank:tab:"+id+":", cfg.Session.TTL), nil
	case config.StorageFile:
		return storage.NewFileArea(filepath.Join(cfg.Session.Dir, id+".json")), nil
	}
	return storage.NewMemoryArea(), nil
}

func newRouter(cfg *config.Config, registry *tabs.Registry, rdb *redis.Client) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.SetHTMLTemplate(handlers.Templates())

	handlers.RegisterHealth(r, startTime, readinessChecks(cfg, rdb))
	handlers.RegisterSwagger(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var limiter gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			limiter = middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, cfg.RateLimit.Window, middleware.LoginKey)
		} else {
			limiter = middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, middleware.LoginKey)
		}
	}

	app := r.Group("/", tabs.Middleware(registry))
	handlers.NewAuthHandler(tabs.FromContext).Register(app, limiter)
	handlers.RegisterViews(app, tabs.State)
	return r
}

func readinessChecks(cfg *config.Config, rdb *redis.Client) map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	switch cfg.Session.Storage {
	case config.StorageRedis:
		checks["storage"] = func(ctx context.Context) error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		}
	case config.StorageFile:
		checks["storage"] = func(ctx context.Context) error {
			return os.MkdirAll(cfg.Session.Dir, 0700)
		}
	default:
		checks["storage"] = func(ctx context.Context) error { return nil }
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis {
		checks["rate_limit"] = func(ctx context.Context) error {
			if rdb == nil {
				return fmt.Errorf("redis not configured")
			}
			return rdb.Ping(ctx).Err()
		}
	}
	return checks
}
