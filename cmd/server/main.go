package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/browserbase-chat/internal/adapter"
	"github.com/shehryarbajwa/browserbase-chat/internal/api"
	"github.com/shehryarbajwa/browserbase-chat/internal/browser"
	"github.com/shehryarbajwa/browserbase-chat/internal/catalog"
	"github.com/shehryarbajwa/browserbase-chat/internal/completion"
	"github.com/shehryarbajwa/browserbase-chat/internal/config"
	"github.com/shehryarbajwa/browserbase-chat/internal/group"
	"github.com/shehryarbajwa/browserbase-chat/internal/logger"
	"github.com/shehryarbajwa/browserbase-chat/internal/profile"
	"github.com/shehryarbajwa/browserbase-chat/internal/proxy"
	"github.com/shehryarbajwa/browserbase-chat/internal/ratelimit"
	"github.com/shehryarbajwa/browserbase-chat/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("failed to load configuration")
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logger.GetLogger().Fatal().Err(err).Msg("failed to configure logger")
	}
	log.Info().Str("target", cfg.TargetBaseURL).Strs("paths", cfg.RemotePaths).Msg("starting browserbase-chat")

	groups, err := group.NewRegistry(cfg.TargetBaseURL, cfg.RemotePaths)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid remote paths")
	}

	// Browser launcher
	launcher, profiles, cleanup := setupLauncher(cfg, log)
	defer cleanup()

	// Catalog
	if dir := filepath.Dir(cfg.CatalogDBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Msg("failed to create catalog directory")
		}
	}
	store, err := catalog.OpenSQLite(cfg.CatalogDBPath, time.Now)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open catalog store")
	}
	defer store.Close()

	var fetcher catalog.Fetcher
	switch cfg.CatalogFetchMode {
	case "browser":
		fetcher = catalog.NewPageFetcher(launcher)
	default:
		fetcher = catalog.NewHTTPFetcher(cfg.ElementTimeout, log)
	}
	refresher := catalog.NewRefresher(groups, fetcher, cfg.Selectors.ModelSelect, cfg.ElementTimeout*2, log)
	modelCatalog := catalog.New(store, refresher, cfg.CacheTTL(), log)

	warmCtx, cancelWarm := context.WithTimeout(context.Background(), 10*time.Second)
	if err := modelCatalog.Warm(warmCtx); err != nil {
		log.Warn().Err(err).Msg("catalog warm-up failed, first request will refresh")
	}
	cancelWarm()

	// Sessions and completion watcher
	sel := completion.Selectors(cfg.Selectors)
	sessions := session.NewManager(launcher, groups, session.Config{
		ReadySelectors: []string{sel.ModelSelect, sel.MessageInput},
		ElementTimeout: cfg.ElementTimeout,
		IdleTimeout:    cfg.SessionIdleTimeout,
	}, log)

	watcher := completion.NewWatcher(completion.Config{
		PollInterval:   cfg.PollInterval,
		IdlePolls:      cfg.IdlePolls,
		Timeout:        cfg.CompletionTimeout,
		ElementTimeout: cfg.ElementTimeout,
		SendRetries:    cfg.SendRetries,
		RetryDelay:     300 * time.Millisecond,
	}, sel, nil, log)

	svc := adapter.NewService(modelCatalog, sessions, watcher, cfg.StreamChunkWords, log)

	// HTTP
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerHour, cfg.RateLimitBurst)
	opts := api.RouterOptions{
		APIKey:      cfg.APIKey,
		RateLimiter: rateLimiter,
	}
	if cfg.EnableDebugSocket {
		opts.DebugProxy = proxy.NewServer(sessions, log)
		log.Warn().Msg("CDP debug socket enabled")
	}

	var profileAPI api.Profiles
	if profiles != nil {
		profileAPI = profiles
	}
	router := api.NewHandler(svc, sessions, profileAPI, log).SetupRoutes(opts)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()
	go sessions.RunReaper(bgCtx)
	go pruneLimiter(bgCtx, rateLimiter)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := sessions.CloseAll(ctx); err != nil {
		log.Error().Err(err).Msg("failed to close sessions")
	}

	log.Info().Msg("server stopped")
}

// setupLauncher builds the browser backend for the configured mode. The
// profile manager is only used with docker launched browsers.
func setupLauncher(cfg *config.Config, log zerolog.Logger) (browser.Launcher, *profile.Manager, func()) {
	if cfg.BrowserMode == "remote" {
		log.Info().Str("url", cfg.BrowserWSURL).Msg("attaching to remote chrome")
		return browser.NewRemoteLauncher(cfg.BrowserWSURL, log), nil, func() {}
	}

	pool, err := browser.NewPool(cfg.BrowserImage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create browser pool")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	log.Info().Str("image", cfg.BrowserImage).Msg("ensuring chrome image is available")
	if err := pool.EnsureImage(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure image")
	}
	if n, err := pool.RemoveStale(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to remove stale containers")
	} else if n > 0 {
		log.Info().Int("containers", n).Msg("removed stale browser containers")
	}

	profiles, err := profile.NewManager(cfg.ProfileDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create profile manager")
	}

	return browser.NewDockerLauncher(pool, profiles, log), profiles, func() { _ = pool.Close() }
}

func pruneLimiter(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(2 * time.Hour)
		}
	}
}
