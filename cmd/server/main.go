package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"montevecchio/internal/api"
	"montevecchio/internal/clock"
	"montevecchio/internal/config"
	"montevecchio/internal/database"
	"montevecchio/internal/events"
	"montevecchio/internal/metrics"
	"montevecchio/internal/notify"
	"montevecchio/internal/photos"
	"montevecchio/internal/realtime"
	"montevecchio/internal/repository"
	"montevecchio/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("MONTEVECCHIO_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, sqlStore, rdb, err := openStore(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open store error")
	}
	if sqlStore != nil {
		defer sqlStore.Close()
	}
	if rdb != nil {
		defer rdb.Close()
	}

	loc := cfg.Location()
	bus := events.NewEventBus(&logger)
	hub := realtime.NewHub(originChecker(cfg.Server.AllowedOrigins), &logger)
	bus.Subscribe(events.AllTypes, hub.HandleEvent)

	if cfg.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("create telegram bot error")
		}
		bot.Debug = cfg.Telegram.Debug
		notifier := notify.NewTelegramNotifier(bot, cfg.Telegram.ChatID, cfg.Telegram.MessagesPerS, loc, &logger)
		bus.Subscribe(events.AllTypes, notifier.HandleEvent)
		go notifier.Run(ctx)
		logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifications enabled")
	}

	svc := service.NewHouseholdService(store, bus, clock.System{Location: loc}, service.Options{
		GroupName:      cfg.Household.Name,
		Location:       loc,
		MaxSaveRetries: cfg.Household.MaxSaveRetries,
		HistoryLimit:   cfg.Household.HistoryLimit,
	}, &logger)
	if _, err := svc.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialize household state error")
	}

	opts := api.Options{
		APIKey:          cfg.Server.APIKey,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		TrustProxy:      cfg.Server.TrustProxy,
		Realtime:        hub,
	}
	if cfg.PhotosEnabled() {
		client, err := photos.NewS3Client(ctx, cfg.AWS.Region, cfg.AWS.Endpoint)
		if err != nil {
			logger.Fatal().Err(err).Msg("create s3 client error")
		}
		opts.Photos = photos.NewS3Store(s3.NewPresignClient(client), cfg.AWS.Bucket, cfg.UploadURLTTL())
	}

	if sqlStore != nil && cfg.Backup.Enabled {
		backups := database.NewBackupService(sqlStore, cfg.Backup, loc, &logger)
		if err := backups.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup scheduler not started")
		}
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, store, &logger)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(svc, opts, &logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Storage.Driver).
		Str("timezone", loc.String()).
		Msg("Household server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("api server error")
	}
	logger.Info().Msg("Household server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Console {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore builds the configured document store. The sqlite store is also
// returned when present so backups can snapshot it.
func openStore(cfg *config.Config, logger *zerolog.Logger) (repository.DocumentStore, *database.Store, *redis.Client, error) {
	newRedis := func() *redis.Client {
		return redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	}

	switch cfg.Storage.Driver {
	case "memory":
		return repository.NewMemoryStore(), nil, nil, nil
	case "redis":
		rdb := newRedis()
		return repository.NewRedisStore(rdb, cfg.Redis.Key), nil, rdb, nil
	case "failover":
		sqlStore, err := database.Open(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		rdb := newRedis()
		primary := repository.NewRedisStore(rdb, cfg.Redis.Key)
		return repository.NewFailoverStore(primary, sqlStore, logger), sqlStore, rdb, nil
	default:
		sqlStore, err := database.Open(cfg.Database.Path, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlStore, sqlStore, nil, nil
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func startHealthServer(ctx context.Context, port int, store repository.DocumentStore, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := store.Ping(ctxPing); err != nil {
			http.Error(w, "store not ready", http.StatusServiceUnavailable)
			return
		}
		if fs, ok := store.(*repository.FailoverStore); ok && fs.Degraded() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready (degraded)"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
