package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/logger"
)

const (
	// DefaultBatchThreshold is the pool size that forces immediate execution
	DefaultBatchThreshold = 5

	// DefaultExecutionCooldown is the delay after a failed execution before
	// the executor becomes eligible again
	DefaultExecutionCooldown = 30

	// DefaultGasMarginPercent is the safety margin applied to the estimated
	// settlement cost before submission
	DefaultGasMarginPercent = 20

	// DefaultMetricsPort defines the default port for the status and metrics server
	DefaultMetricsPort = "8080"

	// DefaultRPCURL is the default node endpoint
	DefaultRPCURL = "ws://127.0.0.1:8546"

	// DefaultCooldownEnabled defines whether the execution cooldown gate is enabled
	DefaultCooldownEnabled = true

	// DefaultCooldownThreshold defines the number of failures before the gate opens.
	// One failure is enough: every failed settlement starts a cooldown.
	DefaultCooldownThreshold = 1

	// DefaultCooldownWindow defines the failure counting window in seconds
	DefaultCooldownWindow = 60

	// ConfidenceCutoff is the predictor score above which the adaptive trigger
	// fires. Fixed, not env-overridable.
	ConfidenceCutoff = 0.7

	// FeeWindowCapacity is the number of fee samples the predictor trains on.
	// Fixed, not env-overridable.
	FeeWindowCapacity = 10
)

// GetEnvBatchThreshold returns the batch size threshold from environment variables
func GetEnvBatchThreshold() (int, error) {
	raw := os.Getenv("BATCH_THRESHOLD")
	if raw == "" {
		return DefaultBatchThreshold, nil
	}

	threshold, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid BATCH_THRESHOLD value: %s, must be an integer", raw)
	}
	if threshold <= 0 {
		return 0, fmt.Errorf("BATCH_THRESHOLD must be greater than 0")
	}
	return threshold, nil
}

// GetEnvExecutionCooldown returns the post-failure cooldown in seconds from environment variables
func GetEnvExecutionCooldown() (time.Duration, error) {
	raw := os.Getenv("EXECUTION_COOLDOWN")
	if raw == "" {
		return time.Duration(DefaultExecutionCooldown) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid EXECUTION_COOLDOWN value: %s, must be an integer", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("EXECUTION_COOLDOWN must be greater than 0")
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvGasMarginPercent returns the gas safety margin from environment variables
func GetEnvGasMarginPercent() (int, error) {
	raw := os.Getenv("GAS_MARGIN_PERCENT")
	if raw == "" {
		return DefaultGasMarginPercent, nil
	}

	margin, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid GAS_MARGIN_PERCENT value: %s, must be an integer", raw)
	}
	if margin < 0 {
		return 0, fmt.Errorf("GAS_MARGIN_PERCENT must not be negative")
	}
	return margin, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	port := os.Getenv("METRICS_PORT")
	if port == "" {
		return DefaultMetricsPort, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be an integer", port)
	}
	return port, nil
}

// GetEnvRPCURL returns the node endpoint from environment variables
func GetEnvRPCURL() (string, error) {
	url := os.Getenv("RPC_URL")
	if url == "" {
		return DefaultRPCURL, nil
	}
	return url, nil
}

// GetEnvVaultAddress returns the vault contract address from environment variables
func GetEnvVaultAddress() (common.Address, error) {
	raw := os.Getenv("VAULT_ADDRESS")
	if raw == "" {
		return common.Address{}, fmt.Errorf("VAULT_ADDRESS environment variable is required")
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid VAULT_ADDRESS value: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

// GetEnvRelayerAddress returns the expected relayer identity from environment variables.
// Optional: used only for the advisory startup check against the vault.
func GetEnvRelayerAddress() (common.Address, error) {
	raw := os.Getenv("RELAYER_ADDRESS")
	if raw == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid RELAYER_ADDRESS value: %s", raw)
	}
	return common.HexToAddress(raw), nil
}

// GetEnvCooldownEnabled returns whether the cooldown gate is enabled
func GetEnvCooldownEnabled() (bool, error) {
	raw := os.Getenv("COOLDOWN_ENABLED")
	if raw == "" {
		return DefaultCooldownEnabled, nil
	}

	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid COOLDOWN_ENABLED value: %s, must be a boolean", raw)
	}
	return enabled, nil
}

// GetEnvCooldownThreshold returns the failure count that opens the cooldown gate
func GetEnvCooldownThreshold() (int, error) {
	raw := os.Getenv("COOLDOWN_THRESHOLD")
	if raw == "" {
		return DefaultCooldownThreshold, nil
	}

	threshold, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid COOLDOWN_THRESHOLD value: %s, must be an integer", raw)
	}
	if threshold <= 0 {
		return 0, fmt.Errorf("COOLDOWN_THRESHOLD must be greater than 0")
	}
	return threshold, nil
}

// GetEnvCooldownWindow returns the failure counting window from environment variables
func GetEnvCooldownWindow() (time.Duration, error) {
	raw := os.Getenv("COOLDOWN_WINDOW")
	if raw == "" {
		return time.Duration(DefaultCooldownWindow) * time.Second, nil
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid COOLDOWN_WINDOW value: %s, must be an integer", raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("COOLDOWN_WINDOW must be greater than 0")
	}
	return time.Duration(seconds) * time.Second, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	raw := os.Getenv("LOG_LEVEL")
	if raw == "" {
		return logger.InfoLevel, nil
	}

	switch strings.ToLower(raw) {
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be debug, info, notice or error", raw)
	}
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	raw := os.Getenv("LOG_COLORING")
	if raw == "" {
		return true, nil
	}

	coloring, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be a boolean", raw)
	}
	return coloring, nil
}
