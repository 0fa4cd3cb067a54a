package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"syncd/internal/coordinator"
)

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	port := fs.Uint("port", 8080, "port to listen on")
	storageDir := fs.String("storage-dir", "./server_storage", "root directory for logical directory storage")
	fs.Parse(args)

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := os.MkdirAll(*storageDir, 0755); err != nil {
		log.Error("could not create storage dir", zap.Error(err))
		os.Exit(1)
	}

	coord, err := coordinator.New(*storageDir, log)
	if err != nil {
		log.Error("could not initialize coordinator", zap.Error(err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      coord.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listenErrs := make(chan error, 1)
	go func() {
		log.Info("coordinator listening", zap.Uint("port", *port), zap.String("storage_dir", *storageDir))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			listenErrs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-listenErrs:
		log.Error("server failed to start", zap.Error(err))
		os.Exit(1)
	case <-quit:
	}

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}
