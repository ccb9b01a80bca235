package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/complysurvey/complysurvey/internal/app"
	"github.com/complysurvey/complysurvey/internal/auth"
	"github.com/complysurvey/complysurvey/internal/identity"
	"github.com/complysurvey/complysurvey/internal/observability"
	"github.com/complysurvey/complysurvey/internal/platform/cache"
	"github.com/complysurvey/complysurvey/internal/platform/db"
	"github.com/complysurvey/complysurvey/internal/rbac"
	"github.com/complysurvey/complysurvey/internal/users"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN); err != nil {
			logger.Error("run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var store auth.UserStore
	switch cfg.UserStore {
	case app.StoreIdentity:
		manager := identity.NewManager(pool, redisClient, identity.Options{
			MaxFailures:   cfg.LockoutMaxFailures,
			LockoutWindow: cfg.LockoutWindow,
		})
		store = auth.NewIdentityStore(pool, manager)
	default:
		store = auth.NewProcedureStore(auth.ProcedureStoreConfig{
			Pool:          pool,
			MaxFailures:   cfg.LockoutMaxFailures,
			LockoutWindow: cfg.LockoutWindow,
		})
	}
	logger.Info("credential store selected", slog.String("store", cfg.UserStore))

	codec := auth.NewCodec(auth.TokenOptions{
		Key:       []byte(cfg.JWTKey),
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		AccessTTL: cfg.AccessTokenTTL(),
	}, logger)

	authService := auth.NewService(auth.ServiceConfig{
		Store:      store,
		Codec:      codec,
		RefreshTTL: cfg.RefreshTokenTTL(),
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	authHandler := auth.NewHandler(logger, authService, metrics)

	rbacMiddleware := rbac.Middleware{Codec: codec, Logger: logger}
	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:       logger,
		Config:       cfg,
		AuthHandler:  authHandler,
		UsersHandler: usersHandler,
		Pool:         pool,
		Metrics:      metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
