package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/puente-salud/puente/internal/audio"
	"github.com/puente-salud/puente/internal/backup"
	"github.com/puente-salud/puente/internal/config"
	"github.com/puente-salud/puente/internal/intent"
	"github.com/puente-salud/puente/internal/provider"
	"github.com/puente-salud/puente/internal/server"
	"github.com/puente-salud/puente/internal/session"
	"github.com/puente-salud/puente/internal/storage"
	"github.com/puente-salud/puente/internal/summary"
)

func main() {
	log.Println("puente: starting")

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	var prov provider.Provider
	providerMode := config.ProviderLive
	if cfg.Simulated() {
		providerMode = config.ProviderSimulated
		prov = provider.NewSim()
		log.Println("puente: using simulated provider")
	} else {
		prov = provider.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ParsedRealtimeTimeout())
	}

	hub := server.NewHub()
	recorder := audio.NewRecorder(cfg.AudioDir)
	detector := intent.NewDetector()

	registry := session.NewRegistry(store, prov, hub, detector, recorder)
	pipeline := session.NewPipeline(registry)
	summaries := summary.NewGenerator(store, prov)

	handler := server.Handler(hub, registry, pipeline, store, summaries, server.StatusHooks{
		Warnings:      func() []string { return warnings },
		Provider:      func() string { return providerMode },
		DroppedChunks: pipeline.Dropped,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := backup.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: drive backup disabled: %v", syncErr)
		} else {
			go func() {
				ticker := time.NewTicker(cfg.ParsedBackupInterval())
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						if err := syncer.Sync(cfg.DBPath); err != nil {
							log.Printf("drive backup error: %v", err)
						}
					}
				}
			}()
		}
	}

	log.Printf("puente: gateway on %s", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("puente: shutting down")
	cancel()

	registry.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}
