package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lbp/pool-engine/internal/api"
	"github.com/lbp/pool-engine/internal/chain"
	"github.com/lbp/pool-engine/internal/config"
	"github.com/lbp/pool-engine/internal/factory"
	"github.com/lbp/pool-engine/internal/metrics"
	"github.com/lbp/pool-engine/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "pool-engine",
		Short:        "Liquidity bootstrapping pool daemon",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool factory over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("port", "8080", "HTTP listen port")
	serveCmd.Flags().String("database-url", "", "PostgreSQL URL; empty uses the in-memory store")
	serveCmd.Flags().String("redis-url", "", "Redis URL for the read-through cache")
	serveCmd.Flags().Duration("cache-ttl", 30*time.Second, "Redis cache TTL")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("dev-mode", false, "mount mint, pair and feed endpoints")
	serveCmd.Flags().String("admin", "", "admin address for every pool")
	serveCmd.Flags().Duration("deposit-window", 7*24*time.Hour, "deposit phase length")
	serveCmd.Flags().Duration("price-refresh", 24*time.Hour, "price ratio cache interval")
	serveCmd.Flags().Int64("penalty-bps", 1000, "early withdrawal penalty in basis points")
	serveCmd.Flags().Int64("initial-release-bps", 2500, "discovery LP share released at completion")
	serveCmd.Flags().String("locking-periods", "", "two-sided pool menu, e.g. 2w:10000,4w:11500")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.CacheTTL)
		}
	} else {
		slog.Warn("database url not set, using in-memory store (journal will not persist)")
		st = store.NewMemoryStore()
	}

	if prior, err := st.ListPools(ctx); err == nil && len(prior) > 0 {
		slog.Info("journal holds snapshots from earlier runs", "pools", len(prior))
	}

	// --- In-process chain ---
	ledger := chain.NewMemoryLedger()
	router := chain.NewMemoryRouter(ledger, cfg.RouterAddress)
	feeds := chain.NewFeedRegistry(nil)

	var dev *api.DevTools
	if cfg.DevMode {
		dev = &api.DevTools{Ledger: ledger, Router: router, Feeds: feeds}
		slog.Warn("dev mode enabled: mint, pair and feed endpoints are mounted")
	}

	// --- Factory ---
	f := factory.New(cfg.FactoryAddress, ledger, router, factory.Settings{
		Admin:             cfg.Admin,
		DepositWindow:     cfg.DepositWindow,
		PenaltyBps:        cfg.PenaltyBps,
		InitialReleaseBps: cfg.InitialReleaseBps,
		IntermediateMenu:  cfg.IntermediateMenu,
		DiscoveryMenu:     cfg.DiscoveryMenu,
		PriceInterval:     cfg.PriceRefresh,
		MaxPriceAge:       cfg.MaxPriceAge,
		PriceRetries:      cfg.PriceRetries,
		PriceRetryDelay:   cfg.PriceRetryDelay,
		Logger:            logger,
	})
	metrics.ActivePools.Set(0)

	// --- WebSocket hub ---
	wsHub := api.NewWSHub()
	go wsHub.Run(ctx)

	// --- Pool service ---
	svc := api.NewService(f, st, feeds, wsHub, dev)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.CallerHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"pool-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pool-engine listening", "port", cfg.Port, "admin", cfg.Admin.Hex())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down pool-engine...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	slog.Info("pool-engine stopped")
	return nil
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "", "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})), nil
}
