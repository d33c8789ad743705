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

	"github.com/OldStager01/swarm-autoscaler/api"
	"github.com/OldStager01/swarm-autoscaler/internal/logger"
	"github.com/OldStager01/swarm-autoscaler/internal/orchestrator"
	"github.com/OldStager01/swarm-autoscaler/pkg/config"
	"github.com/OldStager01/swarm-autoscaler/pkg/database"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] [-migrate] <resource-group> <cpu|memory>\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyArgs(flag.Args())
	if err := cfg.Validate(); err != nil {
		usage()
		logger.Fatalf("Invalid config: %v", err)
	}

	logger.Setup(cfg.App.LogLevel, cfg.App.Mode)
	logger.Infof("Starting %s in %s mode for resource group %s (criteria: %s)",
		cfg.App.Name, cfg.App.Mode, cfg.Agent.ResourceGroup, cfg.Agent.Criteria)

	db := openDatabase(cfg)
	if db != nil {
		defer db.Close()
	}

	if *migrate {
		runMigrations(cfg, db)
		return
	}

	o, err := orchestrator.New(cfg, db)
	if err != nil {
		logger.Fatalf("Failed to build agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Start(ctx); err != nil {
		logger.Fatalf("Failed to start agent: %v", err)
	}

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.API.Enabled {
		server = api.NewServer(cfg.API, cfg.App.Mode, api.Dependencies{
			DB:        db,
			Agent:     o,
			Collector: o.Collector(),
			Metrics:   o.Metrics().Handler(),
		})
		go func() {
			logger.Infof("Status server listening on port %d", cfg.API.Port)
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-o.Done():
		if err := o.Err(); err != nil {
			// Flush the halt into the deployment history before exiting.
			o.Stop()
			logger.Fatalf("Agent halted: %v", err)
		}
		logger.Info("Agent stopped")
	case err := <-serverErr:
		o.Stop()
		logger.Fatalf("Status server error: %v", err)
	case sig := <-shutdownChan:
		logger.Infof("Received signal %v, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Status server shutdown error: %v", err)
		}
	}
	o.Stop()

	logger.Info("Agent stopped gracefully")
}

func openDatabase(cfg *config.Config) *database.DB {
	if !cfg.Database.Enabled {
		return nil
	}

	db, err := database.New(cfg.Database.ToDBConfig())
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if version, err := db.GetVersion(ctx); err == nil {
		logger.Infof("Database connection established: %s", version)
	}
	return db
}

func runMigrations(cfg *config.Config, db *database.DB) {
	if db == nil {
		logger.Fatal("Migrations require database.enabled")
	}

	timeout := cfg.Database.MigrationTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Info("Running database migrations")
	if err := database.NewMigrator(db).Run(ctx); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
	logger.Info("Migrations completed successfully")
}
