package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/relaypool-hq/relaypool/pkg/logger"
)

// Config holds the configuration for the relayer service
type Config struct {
	RPCURL           string
	VaultAddress     common.Address
	RelayerAddress   common.Address
	PrivateKey       string
	BatchThreshold   int
	ConfidenceCutoff float64
	FeeWindow        int
	GasMarginPercent int
	MetricsPort      string
	Cooldown         CooldownConfig
	LoggerConfig     LoggerConfig
}

// CooldownConfig holds the execution cooldown gate configuration
type CooldownConfig struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	batchThreshold, err := GetEnvBatchThreshold()
	if err != nil {
		return nil, err
	}

	cooldown, err := GetEnvExecutionCooldown()
	if err != nil {
		return nil, err
	}

	gasMargin, err := GetEnvGasMarginPercent()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	rpcURL, err := GetEnvRPCURL()
	if err != nil {
		return nil, err
	}

	vaultAddress, err := GetEnvVaultAddress()
	if err != nil {
		return nil, err
	}

	relayerAddress, err := GetEnvRelayerAddress()
	if err != nil {
		return nil, err
	}

	cdEnabled, err := GetEnvCooldownEnabled()
	if err != nil {
		return nil, err
	}

	cdThreshold, err := GetEnvCooldownThreshold()
	if err != nil {
		return nil, err
	}

	cdWindow, err := GetEnvCooldownWindow()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCURL:           rpcURL,
		VaultAddress:     vaultAddress,
		RelayerAddress:   relayerAddress,
		PrivateKey:       os.Getenv("PRIVATE_KEY"),
		BatchThreshold:   batchThreshold,
		ConfidenceCutoff: ConfidenceCutoff,
		FeeWindow:        FeeWindowCapacity,
		GasMarginPercent: gasMargin,
		MetricsPort:      metricsPort,
		Cooldown: CooldownConfig{
			Enabled:      cdEnabled,
			Threshold:    cdThreshold,
			Window:       cdWindow,
			ResetTimeout: cooldown,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.VaultAddress == (common.Address{}) {
		return fmt.Errorf("VAULT_ADDRESS environment variable is required")
	}
	return nil
}
