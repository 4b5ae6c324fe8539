package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soundoff.org/internal/audit"
	"soundoff.org/internal/config"
	"soundoff.org/internal/guard"
	"soundoff.org/internal/httpapi"
	"soundoff.org/internal/obs"
	"soundoff.org/internal/ratelimit"
	"soundoff.org/internal/results"
	"soundoff.org/internal/stream"
	"soundoff.org/internal/store/pg"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SOUNDOFF_COMMIT"))

	// Collaborators: Postgres when a DSN is configured, in-process otherwise.
	var (
		store   results.Store
		limiter ratelimit.Counter
		sink    audit.Sink
		probe   httpapi.ReadyProbe
	)
	events := stream.New()
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		store = pgStore
		limiter = pg.NewRateCounter(pgStore.DB())
		sink = audit.MultiSink{pg.NewAuditSink(pgStore.DB()), events}
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		log.Println("no SOUNDOFF_PG_DSN set, using in-memory collaborators")
		store = results.NewInMemory()
		limiter = ratelimit.NewMemory()
		sink = audit.MultiSink{audit.NewLogSink(), events}
	}

	evaluator, err := guard.NewEvaluator(store, limiter, sink,
		guard.WithCreateLimit(cfg.CreateLimit, cfg.CreateWindow),
		guard.WithEditWindow(cfg.EditWindow),
		guard.WithDeleteWindow(cfg.DeleteWindow),
	)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}

	if cfg.AuthSecret == "" {
		log.Println("warning: SOUNDOFF_AUTH_SECRET not set, authenticated routes will reject every token")
	}

	api := httpapi.New(probe, version, evaluator, store, events)
	api.SetTransportRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting soundoff-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
