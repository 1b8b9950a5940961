package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"warelay/internal/cache"
	"warelay/internal/config"
	"warelay/internal/dispatch"
	"warelay/internal/httpserver"
	"warelay/internal/logging"
	"warelay/internal/observability"
	"warelay/internal/providers/whatsapp"
	"warelay/internal/realtime"
	"warelay/internal/service"
	"warelay/internal/session"
	"warelay/internal/store/memory"
	"warelay/internal/store/pg"
	"warelay/internal/tenants"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook relay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(config.LoadRelay())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// messageStore is everything the relay needs from persistence.
type messageStore interface {
	service.Store
	httpserver.History
	Ping(ctx context.Context) error
}

func serve(cfg config.RelayConfig) error {
	logging.Init("relay", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var msgs messageStore
	if cfg.DBDSN != "" {
		db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnLifetime: cfg.DBMaxConnLifetime,
			MaxConnIdleTime: cfg.DBMaxConnIdleTime,
		})
		if err != nil {
			slog.Error("relay db connect failed", "err", err)
			return err
		}
		defer db.Close()
		if err := pg.Migrate(ctx, db); err != nil {
			slog.Error("relay db migrate failed", "err", err)
			return err
		}
		msgs = pg.New(db)
	} else {
		slog.Warn("relay running without DB_DSN, messages are kept in memory")
		msgs = memory.New()
	}

	var processed *cache.ProcessedCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		processed = cache.NewProcessedCache(rdb, cfg.ProcessedIDCacheTTL)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := processed.Ping(pingCtx); err != nil {
			slog.Warn("relay redis not reachable, status dedupe uses the store only", "err", err)
			processed = nil
		}
		pingCancel()
	}

	observability.Register(prometheus.DefaultRegisterer)

	registry, err := tenants.NewRegistry(
		tenants.Builtins(tenants.Menu{Greeting: cfg.MenuGreeting, WorkingHours: cfg.MenuWorkingHours}),
		cfg.TenantRegistry,
		cfg.TenantRegistryJSON,
	)
	if err != nil {
		slog.Error("relay tenant registry invalid", "err", err)
		return err
	}
	for _, u := range registry.Unknown() {
		slog.Warn("relay tenant maps to unknown automation, router will answer", "mapping", u)
	}

	graph := &whatsapp.Client{
		Token:        cfg.WhatsAppToken,
		GraphVersion: cfg.GraphVersion,
		BaseURL:      cfg.GraphBaseURL,
		DryRun:       cfg.DryRun,
		HTTP:         &http.Client{Timeout: cfg.GraphTimeout},

		PhoneNumberID: cfg.PhoneNumberID,
	}
	bus := realtime.New()
	sessions := session.NewStore(nil)
	dispatcher := &dispatch.Dispatcher{
		Store:        msgs,
		Sender:       graph,
		Publisher:    bus,
		DefaultDelay: cfg.OutboundDefaultDelay,
		SendTimeout:  cfg.GraphTimeout,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.GraphRPS), cfg.GraphBurst),
		Breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "whatsapp",
			MaxRequests: 3,
			Timeout:     20 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 10 },
		}),
	}
	relay := &service.Relay{
		Sessions:   sessions,
		Registry:   registry,
		Dispatcher: dispatcher,
		Store:      msgs,
		Publisher:  bus,

		DefaultTenant: cfg.PhoneNumberID,
	}
	if processed != nil {
		relay.Cache = processed
	}

	srv := httpserver.New()
	srv.Mux.Use(httpserver.Logging, httpserver.Metrics(observability.APIRequests))
	(&httpserver.Webhook{Relay: relay, VerifyToken: cfg.VerifyToken, AppSecret: cfg.AppSecret}).Register(srv.Mux)
	(&httpserver.Outbound{Sender: dispatcher, PhoneNumberID: cfg.PhoneNumberID, Token: cfg.InternalSendToken}).Register(srv.Mux)
	(&httpserver.Panel{Store: msgs}).Register(srv.Mux)
	if cfg.DevRoutes {
		(&httpserver.Dev{Relay: relay, Store: msgs, Stream: bus}).Register(srv.Mux)
	}
	srv.Mux.HandleFunc("/health", httpserver.Health(httpserver.Status{
		Env:          cfg.ConfigName,
		DryRun:       cfg.DryRun,
		GraphVersion: cfg.GraphVersion,
	})).Methods(http.MethodGet)
	srv.Mux.HandleFunc("/healthz", httpserver.Healthz())
	readyChecks := []httpserver.ReadyzCheck{msgs.Ping}
	if processed != nil {
		readyChecks = append(readyChecks, processed.Ping)
	}
	srv.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, readyChecks...))

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sessions.RunSweeper(ctx, cfg.SessionSweepInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening",
			"port", cfg.Port,
			"env", cfg.ConfigName,
			"dry_run", cfg.DryRun,
			"graph_version", cfg.GraphVersion,
			"tenants", len(registry.Tenants()),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("relay server failed", "err", err)
			runErr = fmt.Errorf("http server: %w", err)
		}
	case sig := <-sigCh:
		slog.Info("relay shutdown", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		slog.Info("relay shutdown timeout waiting for dispatch batches")
	}
	return runErr
}
