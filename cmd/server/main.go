package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/pranavpartapsingh/velasa/internal/config"
	"github.com/pranavpartapsingh/velasa/internal/identity"
	"github.com/pranavpartapsingh/velasa/internal/metrics"
	"github.com/pranavpartapsingh/velasa/internal/notify"
	"github.com/pranavpartapsingh/velasa/internal/oracle"
	"github.com/pranavpartapsingh/velasa/internal/portfolio"
	"github.com/pranavpartapsingh/velasa/internal/risk"
	"github.com/pranavpartapsingh/velasa/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("VELASA_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.Store.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg, err := store.NewPostgresStore(context.Background(), pool)
		if err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")
	case "sqlite":
		sq, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			slog.Error("sqlite open failed", "err", err, "path", cfg.Store.SQLitePath)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { sq.Close() })
		st = sq
		slog.Info("using SQLite ledger", "path", cfg.Store.SQLitePath)
	default:
		slog.Warn("using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.Store.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.Store.RedisURL)
		if err != nil {
			slog.Error("invalid redis_url", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Store.ParsedCacheTTL())
		slog.Info("Redis cache enabled")
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price oracle ---
	var orc oracle.Oracle
	switch cfg.Oracle.Provider {
	case "alphavantage":
		orc = oracle.NewAlphaVantageProvider(cfg.Oracle.APIKey, cfg.Oracle.ParsedTimeout())
	case "static":
		orc = oracle.NewStaticOracle()
	default:
		orc = oracle.NewYahooProvider(cfg.Oracle.ParsedTimeout())
	}
	if ttl := cfg.Oracle.ParsedCacheTTL(); ttl > 0 {
		orc = oracle.NewCachedOracle(orc, ttl)
	}

	// --- Position limits ---
	var limiter *risk.Limiter
	if perSymbol, total := cfg.Risk.ParsedMaxPerSymbol(), cfg.Risk.ParsedMaxTotal(); perSymbol > 0 || total > 0 {
		limiter = risk.NewLimiter(perSymbol, total)
		slog.Info("position limits enabled", "per_symbol", perSymbol, "total", total)
	}

	// --- Notifications ---
	wsHub := notify.NewWSHub()
	go wsHub.Run()
	center := notify.NewCenter()
	notifier := notify.Fanout{center, wsHub}

	// --- Portfolio engine ---
	startingCash, err := cfg.StartingCash()
	if err != nil {
		slog.Error("invalid starting_cash", "err", err)
		os.Exit(1)
	}
	engine := portfolio.NewEngine(st, orc, notifier, limiter, startingCash)
	svc := portfolio.NewService(engine, orc, center)

	// --- Pending order sweeper ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if interval := cfg.Sweep.ParsedInterval(); interval > 0 {
		sweeper := portfolio.NewSweeper(engine, interval)
		go sweeper.Run(sweepCtx)
		slog.Info("order sweeper started", "interval", interval.String())
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Velasa-User")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"velasa"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time fill and order notifications.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(identity.HeaderResolver{}))
			svc.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("velasa listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down velasa...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("velasa stopped")
}
