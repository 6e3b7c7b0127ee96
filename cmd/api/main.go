package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stylesync/stylesync-backend/config"
	httpapi "github.com/stylesync/stylesync-backend/internal/api/http"
	"github.com/stylesync/stylesync-backend/internal/bootstrap"
	"github.com/stylesync/stylesync-backend/internal/color_advice/cache"
	cronjob "github.com/stylesync/stylesync-backend/internal/color_advice/cron"
	"github.com/stylesync/stylesync-backend/internal/color_advice/repository"
	"github.com/stylesync/stylesync-backend/internal/color_advice/service"
)

const serviceName = "stylesync-color-advice"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store       cache.Store
		assets      service.AssetResolver
		dbPinger    httpapi.Pinger
		cachePinger httpapi.Pinger
	)

	if cfg.Redis.URL != "" {
		client, err := bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{URL: cfg.Redis.URL})
		if client == nil {
			log.Fatalf("redis: %v", err)
		}
		if err != nil {
			log.Printf("Warning: %v - serving from the in-process cache until redis is reachable", err)
		}
		defer client.Close()
		store = cache.NewRedisStore(client)
	} else {
		log.Println("REDIS_URL not set - using the in-process cache only")
	}

	if cfg.Database.DSN != "" {
		pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: cfg.Database.DSN})
		if err != nil {
			log.Fatalf("db: %v", err)
		}
		defer pool.Close()
		dbPinger = pool
		assets = repository.NewAssetRepository(pool)
	} else {
		log.Println("DB_DSN not set - asset references are disabled")
	}

	pipeline, err := bootstrap.BuildPipeline(cfg, store, assets)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}
	if store != nil {
		cachePinger = pipeline.Cache
	}

	scheduler := cronjob.NewScheduler(pipeline.Cache, pipeline.Breakers)
	if err := scheduler.Start(cfg.Cache.SweepSchedule); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName: serviceName,
		Version:     cfg.App.Version,
		Config:      cfg,
		Pipeline:    pipeline,
		DB:          dbPinger,
		Cache:       cachePinger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	<-scheduler.Stop().Done()
}
