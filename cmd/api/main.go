package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/synapsemind/backend/internal/config"
	"github.com/synapsemind/backend/internal/engine"
	"github.com/synapsemind/backend/internal/handler"
	"github.com/synapsemind/backend/internal/health"
	"github.com/synapsemind/backend/internal/model/discussion"
	"github.com/synapsemind/backend/internal/store"
	"github.com/synapsemind/backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := store.OpenSQLite(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := seedProviders(ctx, db); err != nil {
		log.Fatalf("failed to seed providers: %v", err)
	}

	hub := ws.NewHub()
	eng := engine.New(db, hub, nil, cfg.Engine)
	checker := health.NewChecker(db, nil, cfg.Health)

	if cfg.Health.Enabled {
		go checker.Run(ctx)
	} else {
		log.Println("provider health checker disabled by configuration")
	}

	router := handler.NewRouter(db, eng, hub, checker, cfg.Engine)

	startServer(ctx, cfg.Server, router)
}

// seedProviders installs the default provider roster on first start.
func seedProviders(ctx context.Context, s store.Store) error {
	existing, err := s.ListProviders(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, p := range discussion.Seed() {
		seeded := p
		if err := s.CreateProvider(ctx, &seeded); err != nil {
			return err
		}
	}
	log.Println("initialized default providers")
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("SynapseMind backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
