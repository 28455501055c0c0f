package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaypool-hq/relaypool/pkg/config"
	"github.com/relaypool-hq/relaypool/pkg/health"
	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/relayer"
	"github.com/relaypool-hq/relaypool/pkg/vault"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	// Set up context with cancellation on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to the node and bind the vault contract
	ethVault, err := vault.New(ctx, cfg.RPCURL, cfg.VaultAddress, cfg.PrivateKey, cfg.GasMarginPercent, stdLogger)
	if err != nil {
		log.Fatalf("Failed to connect to vault: %v", err)
	}

	engine := relayer.New(cfg, ethVault, stdLogger)

	// Start the health and metrics server
	server := health.NewServer(cfg.MetricsPort, engine, engine.Cooldown(), stdLogger)
	go server.Start()

	// Set up signal handling for graceful shutdown
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		stdLogger.Notice("Received termination signal, shutting down gracefully...")
		cancel()
	}()

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start relayer: %v", err)
	}

	<-ctx.Done()
	engine.Stop()
}
