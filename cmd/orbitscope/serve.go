package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/orbitscope/internal/api"
	"github.com/star/orbitscope/internal/metrics"
	"github.com/star/orbitscope/internal/propagation"
	"github.com/star/orbitscope/internal/scene"
	"github.com/star/orbitscope/internal/stream"
	"github.com/star/orbitscope/internal/tle"
	"github.com/star/orbitscope/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and frame loop",
	Long: `
Load the catalog (network first, disk cache as fallback), start the frame loop
and serve the 3D frontend, the JSON API, the websocket frame stream and
Prometheus metrics. The catalog is refreshed every tle.max_age.
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address")
	serveCmd.Flags().Float64("frame-rate", 30, "frame loop rate in Hz")

	v.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
	v.BindPFlag("scene.frame_rate", serveCmd.Flags().Lookup("frame-rate"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, os.Stdout)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := tle.NewStore()
	tleCache := tle.NewCache(cfg.TLE.CacheDir, cfg.TLE.MaxFiles)

	var fetcher *tle.Fetcher
	if cfg.TLE.EnableFetch {
		fetcher = tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...)
	}
	loader := tle.NewLoader(fetcher, tleCache, store, cfg.Tracking, logger)

	if _, err := loader.Load(ctx); err != nil {
		logger.Error("no catalog available", "error", err)
		return fmt.Errorf("initial catalog load: %w", err)
	}

	prop := propagation.NewPropagator(store, cfg.Propagation, logger)
	animator := scene.NewAnimator(prop, cfg.Scene, logger)
	streamHandler := stream.NewHandler(animator, store, cfg.Stream, logger)

	deps := api.Deps{
		Store:      store,
		Propagator: prop,
		Animator:   animator,
		Stream:     streamHandler,
		Web:        web.Content,
	}
	if fetcher != nil {
		deps.Loader = loader
	}

	srv := api.NewServer(api.Config{
		Addr:         cfg.HTTP.Addr,
		Auth:         cfg.Auth,
		TrustProxy:   cfg.HTTP.TrustProxy,
		RefreshRate:  cfg.HTTP.RefreshRate,
		RefreshBurst: cfg.HTTP.RefreshBurst,
	}, deps, logger)

	go animator.Start(ctx)
	go loader.Run(ctx, cfg.TLE.MaxAge)

	// Background goroutine to update the catalog age gauge.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if age := store.AgeSeconds(); age >= 0 {
					metrics.SetCatalogAge(age)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", cfg.HTTP.Addr,
			"auth_enabled", cfg.Auth.Enabled,
			"tle_fetch_enabled", cfg.TLE.EnableFetch,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("server listen error", "error", err)
		return err
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
