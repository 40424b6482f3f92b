package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lessonchat/internal/app"
	"lessonchat/internal/config"
	"lessonchat/internal/logger"
)

// Main entry point with signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
func run(args []string) error {
	// a missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		shutdown(application, cfg)
		return fmt.Errorf("application error: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutdown_signal_received")
	return shutdown(application, cfg)
}

// loadConfig applies precedence file > env > defaults. The file comes from
// -config or LESSONCHAT_CONFIG_FILE.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("lessonchat", flag.ContinueOnError)
	path := fs.String("config", os.Getenv(config.EnvPrefix+"CONFIG_FILE"), "path to a YAML or JSON config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfigWithPrecedence(*path)
	if cfg == nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err != nil {
		// FUNCTIONAL DISCOVERY: A broken file falls back to env and defaults
		log.Printf("ignoring config file %s: %v", *path, err)
	}
	return cfg, nil
}

// Timeout context prevents hanging shutdown
func shutdown(application *app.Application, cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
