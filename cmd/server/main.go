package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/azzam1122112-dot/school-display/internal/binding"
	"github.com/azzam1122112-dot/school-display/internal/broadcast"
	"github.com/azzam1122112-dot/school-display/internal/config"
	database "github.com/azzam1122112-dot/school-display/internal/db"
	"github.com/azzam1122112-dot/school-display/internal/revision"
	"github.com/azzam1122112-dot/school-display/internal/snapshot"
	"github.com/azzam1122112-dot/school-display/internal/storage"
	"github.com/azzam1122112-dot/school-display/internal/store"
	"github.com/azzam1122112-dot/school-display/internal/ws"

	apiserver "github.com/azzam1122112-dot/school-display/internal/api/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Display API Server...")

	// 1. Configuration
	cfg := config.Load()

	// 2. Infrastructure
	db := database.New(cfg)
	db.AutoMigrate()
	database.SeedSupportUser(db.DB)
	database.SeedDemoSchool(db.DB)

	st := store.New(cfg)
	if err := st.Ping(context.Background()); err != nil {
		// Polling still works through DB fallbacks, but warn loudly.
		log.Printf("⚠️ Redis unreachable at startup: %v", err)
	}

	assets := storage.New(cfg)

	// 3. Display fabric
	registry := revision.New(st, db.DB)
	builder := snapshot.NewBuilder(db.DB, assets, cfg)
	coordinator := snapshot.NewCoordinator(st, builder.Build)
	bind := binding.New(db.DB, cfg.Display.AllowMultiDevice)

	wsMetrics := ws.NewMetrics()
	ws.RegisterMetrics()
	hub := ws.NewHub(st, cfg, wsMetrics)
	go hub.Run(context.Background())

	broadcaster := broadcast.New(st, cfg, wsMetrics)
	signals := revision.NewSignals(registry)
	signals.Notify = broadcaster.Broadcast
	if err := signals.Register(db.DB); err != nil {
		log.Fatalf("❌ Failed to register mutation hooks: %v", err)
	}

	// 4. Prometheus sidecar
	go func() {
		http.Handle("/_metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/_metrics", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(cfg.Server.MetricsPort, nil); err != nil {
			log.Printf("⚠️ Metrics server error: %v", err)
		}
	}()

	// 5. HTTP + WS server
	srv := apiserver.New(apiserver.Deps{
		Cfg:         cfg,
		DB:          db,
		Store:       st,
		Registry:    registry,
		Signals:     signals,
		Coordinator: coordinator,
		Binding:     bind,
		Hub:         hub,
		WSMetrics:   wsMetrics,
	})

	log.Printf("🚀 Display server starting on %s", cfg.Server.Port)
	if err := srv.Start(cfg.Server.Port); err != nil {
		log.Fatalf("❌ Server failed to start: %v", err)
	}
}
