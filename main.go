package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/easun/isolar-poller/auditlog"
	"github.com/easun/isolar-poller/config"
	"github.com/easun/isolar-poller/httpapi"
	"github.com/easun/isolar-poller/inverter"
	"github.com/easun/isolar-poller/models"
	"github.com/easun/isolar-poller/publish"
	"github.com/easun/isolar-poller/services"
)

var (
	version   = "1.0.0" // set during build: -ldflags "-X main.version=x.y.z"
	buildTime = "unknown"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("📁 No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded .env file")
	}
}

func main() {
	log.Println("╔══════════════════════════════════════════════════╗")
	log.Println("║          Easun/ISolar inverter poller             ║")
	log.Println("╚══════════════════════════════════════════════════╝")
	log.Printf("Version: %s (Built: %s)", version, buildTime)
	if info, ok := debug.ReadBuildInfo(); ok {
		log.Printf("Go Version: %s", info.GoVersion)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	model, ok := inverter.Models[cfg.Model]
	if !ok {
		log.Fatalf("❌ Unknown inverter model %q", cfg.Model)
	}

	log.Println("🗄️  Initializing audit log database...")
	auditDB, err := auditlog.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("❌ Failed to initialize audit log: %v", err)
	}
	defer auditDB.Close()
	auditLog := auditlog.New(auditDB)

	client := inverter.NewClient(cfg.InverterIP, cfg.LocalIP, model)
	coordinator := services.NewCoordinator(client, time.Duration(cfg.ScanInterval)*time.Second)
	coordinator.SetAuditLog(auditLog)

	hub := httpapi.NewHub()
	coordinator.SetPublisher(hub)

	if cfg.MQTTBrokerURL != "" {
		log.Println("📡 Connecting to MQTT broker...")
		mqttPublisher, err := publish.NewMQTTPublisher(cfg.MQTTBrokerURL, cfg.MQTTTopicPrefix, "isolar-poller")
		if err != nil {
			log.Printf("⚠️  MQTT publisher unavailable: %v", err)
		} else {
			defer mqttPublisher.Close()
			coordinator.SetPublisher(multiPublisher{hub, mqttPublisher})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	coordinator.Start(ctx)

	server := httpapi.NewServer(coordinator, hub)
	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 HTTP status server listening on %s", cfg.HTTPAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed: %v", err)
		}
	}()

	gracefulShutdown(cancel, coordinator, srv)
}

// multiPublisher fans a snapshot out to several publishers, collecting the
// first error but always attempting every publisher.
type multiPublisher []services.Publisher

func (m multiPublisher) Publish(snap models.Snapshot) error {
	var first error
	for _, p := range m {
		if err := p.Publish(snap); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func gracefulShutdown(cancel context.CancelFunc, coordinator *services.Coordinator, srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Println("⚠️  Shutdown signal received, initiating graceful shutdown...")
	ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
	defer done()

	log.Println("🛑 Stopping poll coordinator...")
	cancel()
	coordinator.Stop()

	log.Println("🛑 Stopping HTTP server...")
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ Server shutdown error: %v", err)
	}

	log.Println("✅ Graceful shutdown completed")
	os.Exit(0)
}
