package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"group-registry/src/lib"
	"group-registry/src/relay"
)

func main() {
	cfg, err := lib.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := lib.SetupTracing(ctx, cfg)
	if err != nil {
		log.Fatalf("setup tracing: %v", err)
	}

	server, err := relay.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal: %s", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("graceful shutdown failed: %v", err)
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("flush traces: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("server exited with error: %v", err)
		}
	}
}
