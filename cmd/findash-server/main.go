package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"

	"findash/internal/assets"
	"findash/internal/backend"
	"findash/internal/catalog"
	"findash/internal/chat"
	"findash/internal/config"
	"findash/internal/filter"
	"findash/internal/httpapi"
	"findash/internal/live"
	"findash/internal/normalize"
	"findash/internal/store"
	"findash/internal/util"
)

func main() {
	_ = godotenv.Load(".env")

	// Load config.
	cfgPath := "config/findash.yaml"
	if p := os.Getenv("FINDASH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logFile, err := util.OpenDailyLog("findash-server")
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("findash-server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	api := backend.NewClient(cfg.Backend.BaseURL, backend.Options{
		Timeout:        cfg.Backend.TimeoutDuration(),
		RequestsPerSec: cfg.Backend.RequestsPerSec,
		Burst:          cfg.Backend.Burst,
	}, logger)

	// Metric catalog, refreshed on a schedule. A failed first load is not
	// fatal: the health endpoint reports it and the next tick retries.
	cat := catalog.New(api, logger)
	if err := cat.Refresh(ctx); err != nil {
		logger.Warn("initial catalog load failed", "error", err)
	}
	if err := cat.Start(ctx, cfg.Catalog.RefreshCron); err != nil {
		return fmt.Errorf("starting catalog refresh: %w", err)
	}
	defer cat.Stop()

	// Storage.
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	chatLog, err := store.OpenSQL(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("opening chat log: %w", err)
	}
	defer chatLog.Close()
	charts := store.NewParquetStore(cfg.Storage.DataDir)

	// Company names: the analytics API first, then Alpaca when configured.
	var assetGetter assets.AssetGetter
	if cfg.Alpaca.Enabled() {
		assetGetter = assets.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	}
	var resolver filter.NameResolver = assets.NewResolver(api, assetGetter, logger)

	answerer, err := newAnswerer(ctx, cfg, api)
	if err != nil {
		return err
	}

	units := make(map[string]normalize.Unit, len(cfg.Units))
	for name, rule := range cfg.Units {
		units[name] = normalize.Unit{Scale: rule.Scale, Suffix: rule.Suffix}
	}

	feed := live.NewFeed(cfg.Backend.WSURL, logger)
	srv := httpapi.NewServer(ctx, httpapi.Deps{
		Fetcher:    api,
		Catalog:    cat,
		Units:      normalize.NewRegistry(units),
		Resolver:   resolver,
		Answerer:   answerer,
		ChatLog:    chatLog,
		Charts:     charts,
		Live:       feed,
		LiveWindow: cfg.Live.Window,
		Log:        logger,
	})
	defer srv.Close()

	// gRPC relay of the revenue feed.
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr(), err)
	}
	gs := grpc.NewServer()
	live.NewServer(feed, cfg.Live.Window, logger).RegisterGRPC(gs)
	go func() {
		logger.Info("gRPC server listening", "addr", lis.Addr().String(), "upstream", feed.URL())
		if err := gs.Serve(lis); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr, "backend", cfg.Backend.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down findash-server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	gs.GracefulStop()
	return nil
}

func newAnswerer(ctx context.Context, cfg *config.Config, api *backend.Client) (chat.Answerer, error) {
	switch cfg.Chat.Provider {
	case "llm":
		a, err := chat.NewLLMAnswerer(ctx, chat.LLMConfig{
			BaseURL:        cfg.Chat.LLM.BaseURL,
			APIKey:         cfg.Chat.LLM.APIKey,
			Model:          cfg.Chat.LLM.Model,
			RequestsPerMin: cfg.Chat.RequestsPerMin,
		})
		if err != nil {
			return nil, fmt.Errorf("creating LLM answerer: %w", err)
		}
		return a, nil
	default:
		return chat.NewRemoteAnswerer(api), nil
	}
}
