package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxline/session-service/internal/audit"
	"github.com/fluxline/session-service/internal/config"
	"github.com/fluxline/session-service/internal/lockout"
	"github.com/fluxline/session-service/internal/ratelimit"
	"github.com/fluxline/session-service/internal/refresh"
	"github.com/fluxline/session-service/internal/service"
	"github.com/fluxline/session-service/internal/storage"
	"github.com/fluxline/session-service/internal/storage/postgres"
	"github.com/fluxline/session-service/internal/token"
	"github.com/fluxline/session-service/internal/transport/rest"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	// Подключение к БД c таймаутом; миграции накатываются внутри New.
	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	str, err := postgres.New(dbCtx, cfg.DB.DatabaseURL)
	dbCancel()
	if err != nil {
		log.Error("postgres_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer str.Close()
	log.Info("postgres_connected")

	// Счётчики rate-limit: Redis, если сконфигурирован, иначе память процесса.
	var rlStore ratelimit.Store
	if cfg.Redis.RedisURL != "" {
		redisStore, err := ratelimit.NewRedisStore(cfg.Redis.RedisURL, "")
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}
		defer redisStore.Close()
		rlStore = redisStore
		log.Info("redis_connected")
	} else {
		rlStore = ratelimit.NewMemoryStore()
		log.Warn("ratelimit_memory_store", "hint", "set REDIS_URL to share counters between instances")
	}

	limiter := ratelimit.New(rlStore, cfg.Env)
	limiter.SetPolicy(service.RouteLogin, cfg.RateLimit.LoginLimit, cfg.RateLimit.Window)
	limiter.SetPolicy(service.RouteRefresh, cfg.RateLimit.RefreshLimit, cfg.RateLimit.Window)

	auditor := audit.NewLog()

	// Сервис и коллабораторы.
	srvc := service.New(
		str,
		token.NewIssuer(cfg.Auth),
		refresh.NewStore(str, auditor, cfg.Auth.RefreshTokenTTL),
		lockout.NewGuard(str, auditor, cfg.Lockout.Threshold, cfg.Lockout.Window),
		limiter,
	)
	log.Info("service_initialized")

	var ready int32 // 0 — not ready; 1 — ready

	api := rest.NewServer(srvc, cfg.Cookies, cfg.Auth)

	mux := http.NewServeMux()
	mux.Handle("/auth/", api.Routes())

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	// Цепочка middleware: recover снаружи, затем логирование, метрики и таймаут.
	var handler http.Handler = mux
	handler = rest.WithTimeout(cfg.Timeouts.Service)(handler)
	handler = rest.Metrics()(handler)
	handler = rest.Logging(log)(handler)
	handler = rest.Recover(log)(handler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(rootCtx, str, log, 30*time.Minute)

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", slog.String("addr", httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	// Graceful stop с таймаутом.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	}

	log.Info("service_stopped")
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// startRefreshJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены из хранилища.
func startRefreshJanitor(ctx context.Context, st storage.RefreshTokenStorage, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := st.DeleteExpiredTokens(ctx, time.Now().UTC()); err != nil {
					log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
				}
			}
		}
	}()
}
