package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/ytgrabba/internal/api"
	"github.com/iconidentify/ytgrabba/internal/api/handler"
	"github.com/iconidentify/ytgrabba/internal/config"
	"github.com/iconidentify/ytgrabba/internal/downloader"
	"github.com/iconidentify/ytgrabba/internal/metadata"
	"github.com/iconidentify/ytgrabba/internal/ratelimit"
	"github.com/iconidentify/ytgrabba/internal/repository"
	"github.com/iconidentify/ytgrabba/internal/service"
	"github.com/iconidentify/ytgrabba/internal/stream"
	"github.com/iconidentify/ytgrabba/internal/worker"
	"github.com/iconidentify/ytgrabba/pkg/ffmpeg"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// bucketIdle is how long a client's rate limit bucket survives without requests.
const bucketIdle = 10 * time.Minute

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytgrabba %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting ytgrabba",
		"version", Version,
		"build_time", BuildTime,
	)

	// Initialize dependencies
	repo, err := repository.NewFilesystemArtifactRepository(cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open download directory", "error", err)
		os.Exit(1)
	}
	logger.Info("download directory ready", "path", repo.Root())

	transcoder, err := ffmpeg.NewProcessor(cfg.Convert.FFmpegPath, cfg.Convert.ProbeTimeout)
	if err != nil {
		logger.Error("ffmpeg not available", "path", cfg.Convert.FFmpegPath, "error", err)
		os.Exit(1)
	}
	if version, err := ffmpeg.GetVersion(cfg.Convert.FFmpegPath); err == nil {
		logger.Info("ffmpeg found", "version", version)
	}

	resolver := stream.NewResolver(stream.NewYouTubeSource(cfg.Download, logger), logger)
	orchestrator := downloader.NewOrchestrator(resolver, repo, cfg.Download, cfg.Storage, logger)

	var fetcher metadata.Fetcher
	if client := metadata.NewClient(cfg.YouTube, logger); client.Enabled() {
		fetcher = client
	} else {
		logger.Warn("YOUTUBE_API_KEY not set, video info comes from the stream listing")
	}

	// Initialize services
	videoSvc := service.NewVideoService(fetcher, resolver, orchestrator, cfg.Download, logger)
	convertSvc := service.NewConvertService(repo, resolver, transcoder, cfg.Convert, logger)

	// Rate limiting
	var limiter *ratelimit.Limiter
	var tasks []worker.Task
	var closers []io.Closer
	if cfg.RateLimit.Enabled {
		counter := ratelimit.Connect(context.Background(), cfg.RateLimit, logger)
		if c, ok := counter.(io.Closer); ok {
			closers = append(closers, c)
		}
		limiter = ratelimit.NewLimiter(cfg.RateLimit, counter, logger)
		tasks = append(tasks, worker.EvictionTask(limiter, bucketIdle, logger))
	}
	tasks = append(tasks, worker.RetentionTask(repo, cfg.Retention.MaxAge, cfg.Retention.SweepInterval, logger))

	// Initialize handlers
	maxBody := cfg.Server.MaxBodyBytes
	router := api.NewRouter(api.Handlers{
		Video:   handler.NewVideoHandler(videoSvc, repo.Root(), maxBody, logger),
		Convert: handler.NewConvertHandler(convertSvc, repo, maxBody, logger),
		Files:   handler.NewFileHandler(repo, maxBody, logger),
		Health:  handler.NewHealthHandler(repo, cfg.Convert.FFmpegPath),
	}, limiter, cfg.Server.APIKey, logger)

	// Start background maintenance
	janitor := worker.NewJanitor(logger, tasks...)
	janitor.Start()

	// Setup HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Serve until a signal arrives or the listener fails
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	if err := serve(srv, quit, 30*time.Second, logger); err != nil {
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	if err := janitor.Stop(5 * time.Second); err != nil {
		logger.Error("janitor shutdown error", "error", err)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// serve runs srv until quit fires or ListenAndServe fails, then shuts the
// server down within grace. It returns the listener error, if any.
func serve(srv *http.Server, quit <-chan os.Signal, grace time.Duration, logger *slog.Logger) error {
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var err error
	select {
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	case err = <-serverErr:
	}

	// Stop accepting new requests; in-flight transfers get the grace period
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
		logger.Error("server shutdown error", "error", shutdownErr)
	}
	return err
}
