package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"syncd/internal/config"
	"syncd/internal/logging"
	"syncd/internal/participant"
)

func runClient(args []string) {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	configPath := fs.String("file", "", "path to participant config file (required)")
	logLevel := fs.String("log-level", "info", "log level: error, warn, info, debug, trace")
	logFile := fs.String("log-file", "", "write logs to this file instead of stderr")
	quiet := fs.Bool("quiet", false, "suppress all log output")
	fs.Parse(args)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: -file is required")
		os.Exit(1)
	}

	if *quiet {
		logging.SetQuiet()
	} else {
		logging.SetLevel(logging.ParseLevel(*logLevel))
	}
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: could not open log file: %v\n", err)
			os.Exit(1)
		}
		logging.SetOutput(f)
	}

	cfg, dirs, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}

	client := participant.NewClient(cfg.Server, cfg.ParticipantID)
	supervisor := participant.NewSupervisor(cfg.ParticipantID, client)

	ctx, cancel := context.WithCancel(context.Background())

	logging.Info("starting %d directories for participant %s", len(dirs), cfg.ParticipantID)
	supervisor.Start(ctx, dirs)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down")
	cancel()
	supervisor.Wait()
	logging.Info("stopped")
}
