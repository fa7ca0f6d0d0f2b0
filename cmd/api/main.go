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

	"github.com/sachida369/AICaller/internal/audit"
	"github.com/sachida369/AICaller/internal/campaigns"
	"github.com/sachida369/AICaller/internal/config"
	"github.com/sachida369/AICaller/internal/dialer"
	"github.com/sachida369/AICaller/internal/leads"
	"github.com/sachida369/AICaller/internal/reporting"
	"github.com/sachida369/AICaller/internal/store"
	"github.com/sachida369/AICaller/internal/telephony"
	"github.com/sachida369/AICaller/pkg/logger"
	"github.com/sachida369/AICaller/pkg/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, closeLimiter, err := openLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	events := audit.NewService(audit.NewMemoryRepo())

	mgr, err := dialer.NewManager(st, dialer.Options{
		TickInterval: cfg.Dialer.TickInterval,
		Placer:       newPlacer(cfg, log),
		Conversation: telephony.NewScriptedConversation(cfg.Dialer.QualifyRate),
		Limiter:      limiter,
		Events:       events,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("dialer init: %w", err)
	}

	if cfg.Dialer.RecoverOnStart {
		if _, err := mgr.Recover(ctx); err != nil {
			return fmt.Errorf("dialer recovery: %w", err)
		}
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	deps := routeDeps{
		cfg:       cfg,
		store:     st,
		leads:     leads.NewService(st, leads.NewImporter(leads.Policy(cfg.Import.Policy))),
		campaigns: campaigns.NewService(st, cfg.Dialer.DefaultMaxConcurrent),
		reporting: reporting.NewService(st),
		audit:     events,
		dialer:    mgr,
	}
	if err := registerRoutes(r, deps); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", string(cfg.Store.Driver), "twilio", cfg.Twilio.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		// In-flight calls are failed; running campaigns resume on the next start.
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		return store.NewMemory(), func() {}, nil
	case config.StoreDriverPostgres:
		pool, err := utils.OpenPostgres(ctx, cfg.Store.PostgresDSN, utils.PostgresPoolConfig{})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres init: %w", err)
		}
		pg := store.NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return pg, pool.Close, nil
	default:
		js, err := store.OpenJSON(cfg.Store.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("file store init: %w", err)
		}
		return js, func() {}, nil
	}
}

func openLimiter(ctx context.Context, cfg config.Config) (dialer.Limiter, func(), error) {
	if !cfg.Redis.Enabled() {
		return dialer.NewLocalLimiter(), func() {}, nil
	}
	rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("redis init: %w", err)
	}
	return dialer.NewRedisLimiter(rdb, dialer.DefaultRedisKeyPrefix, cfg.Dialer.SlotTTL), func() { _ = rdb.Close() }, nil
}

func newPlacer(cfg config.Config, log *slog.Logger) telephony.Placer {
	if !cfg.Twilio.Enabled() {
		log.Info("twilio credentials not set; calls are simulated")
		return telephony.NewSimulatedPlacer()
	}
	return telephony.NewTwilioPlacer(telephony.TwilioOptions{
		AccountSID:     cfg.Twilio.AccountSID,
		AuthToken:      cfg.Twilio.AuthToken,
		CallerID:       cfg.Twilio.CallerID,
		BaseURL:        cfg.Twilio.APIBaseURL,
		StatusCallback: cfg.StatusCallbackURL,
	}, nil)
}
