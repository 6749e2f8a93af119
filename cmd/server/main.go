package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scriberr/internal/api"
	"scriberr/internal/audio"
	"scriberr/internal/broker"
	"scriberr/internal/config"
	"scriberr/internal/database"
	"scriberr/internal/orchestrator"
	"scriberr/internal/queue"
	"scriberr/internal/resolver"
	"scriberr/internal/sse"
	"scriberr/internal/store"
	"scriberr/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/shlex"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("txd %s (%s)\n", version, commit)
		os.Exit(0)
	}

	log.Println("loading configuration...")
	cfg := config.Load()

	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Info("starting transcription orchestrator", "version", version, "commit", commit)

	if err := database.Initialize(cfg.DatabasePath); err != nil {
		log.Fatal("failed to initialize database:", err)
	}
	defer database.Close()

	registry := broker.NewRegistry()
	registry.Register(broker.NewQueue(broker.QueueConfig{
		Name: "transcription", ServiceType: "transcription",
		Address: cfg.TranscriptionAddr, Command: splitCmd(cfg.TranscriptionCmd), StartTimeout: 15 * time.Second,
	}))
	if cfg.DiarizationAddr != "" {
		registry.Register(broker.NewQueue(broker.QueueConfig{
			Name: "diarization", ServiceType: "diarization",
			Address: cfg.DiarizationAddr, Command: splitCmd(cfg.DiarizationCmd), StartTimeout: 15 * time.Second,
		}))
	}
	if cfg.PunctuationAddr != "" {
		registry.Register(broker.NewQueue(broker.QueueConfig{
			Name: "punctuation", ServiceType: "punctuation",
			Address: cfg.PunctuationAddr, Command: splitCmd(cfg.PunctuationCmd), StartTimeout: 15 * time.Second,
		}))
	}
	defer registry.Close()

	res := resolver.New(registry)
	st := store.New(database.DB)

	transcoder := audio.NewTranscoderWithPath(cfg.FFmpegPath, cfg.FFprobePath)
	segmenter := audio.NewSegmenter()

	scratchWatcher, err := audio.NewScratchWatcher(cfg.DataDir, 6*time.Hour)
	if err != nil {
		log.Fatal("failed to start scratch watcher:", err)
	}
	defer scratchWatcher.Close()

	events := sse.NewBroadcaster()
	defer events.Shutdown()

	orch := orchestrator.New(st, res, registry, transcoder, segmenter, events)

	taskQueue := queue.NewTaskQueue(cfg.Concurrency, orch)
	taskQueue.Start()
	defer taskQueue.Stop()

	handler := api.NewHandler(cfg, st, taskQueue, events)

	if cfg.Host != "localhost" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRoutes(handler)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown:", err)
	}
	logger.Info("server exited")
}

func splitCmd(s string) []string {
	if s == "" {
		return nil
	}
	parts, err := shlex.Split(s)
	if err != nil {
		logger.Warn("failed to parse worker command", "command", s, "error", err)
		return nil
	}
	return parts
}
