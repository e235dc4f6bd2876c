package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pevans/newsmood"
	"github.com/pevans/newsmood/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("NEWSMOOD_CONFIG"), "Path to config file (NEWSMOOD_CONFIG)")
	addr := flag.String("addr", "", "Listen address (overrides api.addr)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner, cleanup, err := newsmood.Setup(ctx, cfg, log.Default())
	if err != nil {
		log.Fatalf("Failed to set up runner: %v", err)
	}
	defer cleanup()

	server := &http.Server{
		Addr:    cfg.API.Addr,
		Handler: newsmood.NewAPIServer(runner, cfg).SetupRouter(),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	errChan := make(chan error, 1)
	go func() {
		log.Printf("Starting newsmood API server on http://%s/api/v1", cfg.API.Addr)
		errChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		log.Println("Shutting down gracefully...")

		if run := runner.Current(); run != nil {
			run.Cancel()
		}
		cancel()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
		log.Println("Server stopped")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}
}
