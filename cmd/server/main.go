package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/analytics"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/auth"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/bot"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/config"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/httpapi"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/instagram"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/lock"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/monitor"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/quota"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/scheduler"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/secrets"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

const (
	lockKey         = "monitor:collection-lock"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), cfg.SecretsPath} {
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	vault, err := secrets.Open(cfg.SecretsPath)
	if err != nil {
		return fmt.Errorf("open secret store: %w", err)
	}
	defer func() { _ = vault.Close() }()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return fmt.Errorf("create token verifier: %w", err)
	}

	ledger := quota.New(store, cfg.MaxDailyRequests, cfg.QuotaLocation())

	var searcher monitor.Searcher
	if cfg.SearchConfigured() {
		client, err := search.New(ctx, cfg.GoogleAPIKey, cfg.GoogleCSEID, search.WithRateLimit(cfg.SearchRatePerSecond))
		if err != nil {
			return fmt.Errorf("create search client: %w", err)
		}
		searcher = client
	} else {
		log.Warn("google search credentials missing, collection endpoints will fail")
	}
	collector := monitor.NewCollector(store, searcher, ledger, log)

	var opts []monitor.Option
	if cfg.RedisURL != "" {
		client, err := lock.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, monitor.WithLocker(lock.NewRedis(client, lockKey, lock.DefaultTTL)))
		log.Info("using redis collection lock")
	}

	svc := monitor.NewService(store, collector, log, opts...)
	if err := svc.Recover(ctx); err != nil {
		return fmt.Errorf("recover status: %w", err)
	}

	var notifier scheduler.Notifier
	if cfg.TelegramBotToken != "" {
		b, err := bot.New(cfg.TelegramBotToken, svc, ledger, store, cfg, log)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		// The bot reads from the service, so it is attached as notifier
		// after both exist.
		svc.SetNotifier(b)
		notifier = b
		go b.Run(ctx)
	}

	var runner scheduler.Runner
	if collector.Configured() {
		runner = svc
	}
	sched := scheduler.New(runner, store, notifier, scheduler.Config{
		Continuous:    cfg.ContinuousCron,
		Historical:    cfg.HistoricalCron,
		Trends:        cfg.TrendsCron,
		TrendsFeedURL: cfg.TrendsFeedURL,
		Location:      cfg.QuotaLocation(),
	}, log)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	api := httpapi.New(httpapi.Deps{
		Monitor:     svc,
		Quota:       ledger,
		Store:       store,
		Analytics:   analytics.New(store, log),
		Dashboard:   instagram.NewDashboard(store, log),
		Ingester:    instagram.NewIngester(store, log),
		Accounts:    instagram.NewAccounts(store, vault, log),
		Verifier:    verifier,
		TaskContext: ctx,
		CORSOrigins: cfg.CORSOrigins,
	}, log)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	sched.Stop(shutdownCtx)
	svc.Wait()
	return nil
}

func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	var opts []auth.VerifierOption
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, auth.WithAudience(cfg.JWTAudience))
	}
	if cfg.JWTPublicKeyFile != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		return auth.NewRSAVerifier(pem, opts...)
	}
	return auth.NewHMACVerifier([]byte(cfg.JWTSecret), opts...)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
