package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartpdf-web/internal/bootstrap"
	"smartpdf-web/internal/config"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/server"
	"smartpdf-web/internal/tracer"

	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 5 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 2. Tracer
	shutdownTracer := tracer.InitTracer(cfg.Tracing, sysLogger)
	defer shutdownTracer(context.Background())

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg, sysLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Start Background Services
	if err := container.Start(ctx); err != nil {
		log.Fatalf("Unable to start background services: %v", err)
	}

	// 5. Run Server until a signal arrives or it fails
	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		sysLogger.Info("Main", "Shutting down", nil)
		return srv.Shutdown()
	})

	err := g.Wait()

	// Every live backend session is released before the process exits.
	container.Shutdown(shutdownGrace)

	if err != nil {
		sysLogger.Error("Main", "Server stopped with error", map[string]interface{}{"error": err.Error()})
		sysLogger.Sync()
		os.Exit(1)
	}
}
