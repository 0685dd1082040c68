// Command perfex-mcp-server exposes PerfexCRM customer operations as MCP
// tools over Server-Sent Events.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FreePeak/perfex-mcp-server/internal/config"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/perfex"
	"github.com/FreePeak/perfex-mcp-server/internal/interfaces/rest"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/auth"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/customers"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/tools"
)

const (
	serverName    = "perfex-mcp-server"
	serverVersion = "1.0.0"

	shutdownTimeout = 10 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.EnvConfigFile+")")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootstrapFatal("Invalid configuration", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       logging.ParseLevel(cfg.LogLevel),
		Development: cfg.LogDevelopment,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		bootstrapFatal("Failed to create logger", err)
	}
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	client, err := perfex.NewClient(cfg.APIURL, cfg.APIKey,
		perfex.WithTimeout(cfg.Timeout),
		perfex.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("Failed to create Perfex client", logging.Fields{"error": err})
	}

	registry := tools.NewRegistry(logger)
	auth.Register(registry, perfex.NewAuthService(client), logger)
	customers.Register(registry, client, logger)

	service := usecases.NewServerService(usecases.ServerConfig{
		Name:    serverName,
		Version: serverVersion,
		Tools:   registry,
		Logger:  logger,
	})

	mcp := rest.NewMCPServer(service, rest.Options{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
		KeepAlive:      cfg.KeepAlive,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("MCP server starting", logging.Fields{
		"port":    cfg.Port,
		"perfex":  cfg.APIURL,
		"tools":   len(registry.List()),
		"version": serverVersion,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mcp.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", logging.Fields{"open_sessions": mcp.Sessions().Count()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return mcp.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Server stopped with error", logging.Fields{"error": err})
	}
	logger.Info("Server stopped")
}

// bootstrapFatal reports errors that happen before the configured logger exists.
func bootstrapFatal(msg string, err error) {
	logger, lerr := logging.New(logging.DefaultConfig())
	if lerr != nil {
		logger = logging.Default()
	}
	logger.Fatal(msg, logging.Fields{"error": err})
}
