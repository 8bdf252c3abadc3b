package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"desacordo-backend/internal/auth"
	"desacordo-backend/internal/config"
	"desacordo-backend/internal/database"
	"desacordo-backend/internal/directory"
	"desacordo-backend/internal/gateway"
	"desacordo-backend/internal/handlers"
	"desacordo-backend/internal/jwt"
	"desacordo-backend/internal/keyValue"
	"desacordo-backend/internal/metrics"
	"desacordo-backend/internal/models"
	"desacordo-backend/internal/presence"
	"desacordo-backend/internal/rooms"
	"desacordo-backend/internal/router"
	"desacordo-backend/internal/snowflake"
	"desacordo-backend/internal/uploads"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if cfg.LogToFile {
		zapConfig.OutputPaths = []string{"app.log", "stdout"}
	} else {
		zapConfig.OutputPaths = []string{"stdout"}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setupKeyValue(ctx context.Context, cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*keyValue.Store, error) {
	if cfg.SelfContained {
		store := keyValue.NewLocal(sugar)
		go store.RunExpiry(ctx, time.Minute)
		return store, nil
	}

	sugar.Infof("Connecting to redis at %s...", cfg.RedisAddress)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return keyValue.NewRedis(sugar, redisClient), nil
}

func run(ctx context.Context, cfg *models.ConfigFile, sugar *zap.SugaredLogger) error {
	db, err := database.Open(cfg, sugar)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	cache, err := setupKeyValue(ctx, cfg, sugar)
	if err != nil {
		return fmt.Errorf("setting up key-value store: %w", err)
	}

	ids, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		return err
	}

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""

	issuer, err := jwt.New(cfg.JwtSecret, isHttps)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	store := directory.New(ids)

	gw := gateway.New(sugar, m, gateway.Options{
		AllowedOrigins:    cfg.AllowedOrigins,
		MaxMessageSize:    cfg.MaxMessageSize,
		SendBufferSize:    cfg.SendBufferSize,
		RateLimitBurst:    cfg.RateLimitBurst,
		RateLimitInterval: cfg.RateLimitWindow,
	})

	rt := router.New(sugar, store, presence.New(), rooms.New(sugar, gw), gw, m)
	gw.SetDispatcher(rt)

	accounts := database.NewAccounts(db)
	authService := auth.New(sugar, accounts, store, ids, rt)
	rt.SetProfileListener(authService)

	h := handlers.New(handlers.Deps{
		Sugar:    sugar,
		Config:   cfg,
		Auth:     authService,
		Accounts: accounts,
		Cache:    cache,
		Issuer:   issuer,
		Gateway:  gw,
		Uploads:  uploads.New(cfg.UploadDir, cfg.MaxUploadSize),
		Gatherer: registry,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Address, cfg.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		var protocol string
		if isHttps {
			protocol = "https"
		} else {
			protocol = "http"
		}
		sugar.Infof("Server is running on %s://%s", protocol, server.Addr)

		if isHttps {
			serverErr <- server.ListenAndServeTLS(cfg.TlsCert, cfg.TlsKey)
		} else {
			serverErr <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	sugar.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// http.Server.Shutdown does not wait for hijacked websocket connections
	if err := gw.Shutdown(shutdownCtx); err != nil {
		sugar.Warnf("Websocket sessions did not close in time: %v", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-serverErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("Reading config file...")
	cfg, err := config.Load(ctx, "config.json", ".env")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer sugar.Sync()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatal(err)
	}
}
