package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"visakal-form/internal/config"
	"visakal-form/internal/database"
	"visakal-form/internal/events"
	httpapi "visakal-form/internal/http"
	"visakal-form/internal/logger"
	"visakal-form/internal/payment"
	"visakal-form/internal/repository"
	"visakal-form/internal/service"
	"visakal-form/internal/store"
	"visakal-form/internal/visaapi"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "visakal-form")
	if err != nil {
		log, _ = zap.NewProduction()
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// KV: redis when reachable, in-process otherwise
	var kv store.KV
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Warn("Redis enabled but unreachable, falling back to memory KV", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		}
	}
	if redisClient != nil {
		kv = store.NewRedisKV(redisClient)
	} else {
		kv = store.NewMemoryKV()
	}

	// drafts: postgres when enabled, in-process otherwise
	var db *sql.DB
	var drafts repository.DraftsRepository
	if cfg.DBEnabled {
		if d, err := database.OpenPostgres(ctx, &cfg.Database); err == nil {
			repo := repository.NewPostgresDraftsRepository(d)
			if err := repo.EnsureSchema(ctx); err != nil {
				log.Warn("Drafts schema setup failed, falling back to memory drafts", zap.Error(err))
				_ = d.Close()
			} else {
				db = d
				drafts = repo
				log.Info("DB enabled for visakal-form drafts")
			}
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory drafts", zap.Error(err))
		}
	}
	if drafts == nil {
		drafts = repository.NewMemoryDraftsRepository()
	}

	var publisher events.Publisher = events.Nop{}
	switch cfg.Events.Mode {
	case "mqtt":
		if p, err := events.NewMQTTPublisher(&cfg.MQTT, log); err == nil {
			publisher = p
		} else {
			log.Warn("MQTT events disabled", zap.Error(err))
		}
	case "redis":
		if redisClient != nil {
			publisher = events.NewStreamPublisher(redisClient, cfg.Events.Stream, 10000)
		} else {
			log.Warn("Redis stream events need a reachable redis; events disabled")
		}
	}

	api := visaapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout, visaapi.TokenFunc(store.AuthTokenFromContext), log)
	schemas := visaapi.NewCachedSchemaSource(api, kv, cfg.Form.SchemaCacheTTL, log)

	forms := service.NewFormService(service.FormServiceConfig{
		API:      api,
		Schemas:  schemas,
		Drafts:   drafts,
		Events:   publisher,
		DraftTTL: cfg.Form.DraftTTL,
		Logger:   log,
	})

	payme := payment.NewPayMeClient(cfg.PayMe.BaseURL, cfg.PayMe.MerchantID, cfg.PayMe.SecretKey, cfg.PayMe.CheckoutPath, log)
	executor := payment.NewExecutor(api, payme, cfg.PayMe.PublicURL, log)
	rates := payment.NewRateSource(cfg.ExchangeRate.DefaultRate, log,
		api,
		payment.NewFrankfurterClient(cfg.ExchangeRate.URL, cfg.ExchangeRate.Timeout),
	)
	apps := service.NewApplicationService(api, forms, executor, rates, publisher, log)
	admin := service.NewAdminService(api, schemas, log)

	router := httpapi.NewRouter(kv, log)
	router.LimitUploads(cfg.Form.UploadRate, cfg.Form.UploadBurst)
	router.RegisterFormRoutes(httpapi.NewFormHandler(forms, cfg.Form.MaxUploadBytes, log))
	router.RegisterApplicationRoutes(httpapi.NewApplicationHandler(apps, log))
	router.RegisterPreferenceRoutes(httpapi.NewPreferencesHandler(log))
	router.RegisterAdminRoutes(httpapi.NewAdminHandler(admin, log))

	go func() {
		if err := forms.RunJanitor(ctx, cfg.Form.JanitorSchedule); err != nil {
			log.Error("Form janitor not started", zap.Error(err))
		}
	}()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	_ = publisher.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = database.Close(db)
}
