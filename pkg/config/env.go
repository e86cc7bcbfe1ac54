package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/shield/pkg/amount"
	"github.com/speedrun-hq/shield/pkg/logger"
)

const (
	// DefaultClearnodeURL defines the default off-chain coordination endpoint
	DefaultClearnodeURL = "https://clearnode.yellow.com"

	// DefaultNativeAsset defines the asset every intent spends
	DefaultNativeAsset = "BNB"

	// DefaultSlippage defines the default slippage tolerance in percent
	DefaultSlippage = "5"

	// DefaultMetricsPort defines the default port for the status and metrics server
	DefaultMetricsPort = "8080"

	// DefaultLogLevel defines the default log level
	DefaultLogLevel = "info"

	// DefaultLogColoring defines whether log levels are colored
	DefaultLogColoring = true

	// DefaultCircuitBreakerEnabled defines whether the broker circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of broker failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 300
)

// GetEnvClearnodeURL returns the coordination endpoint from environment variables
func GetEnvClearnodeURL() (string, error) {
	endpoint := os.Getenv("CLEARNODE_URL")
	if endpoint == "" {
		return DefaultClearnodeURL, nil
	}

	// Validate URL format
	u, err := url.ParseRequestURI(endpoint)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid CLEARNODE_URL value: %s, must be a valid URL", endpoint)
	}
	return endpoint, nil
}

// GetEnvNativeAsset returns the native asset symbol from environment variables
func GetEnvNativeAsset() (string, error) {
	symbol := strings.TrimSpace(os.Getenv("NATIVE_ASSET"))
	if symbol == "" {
		return DefaultNativeAsset, nil
	}
	if strings.ContainsAny(symbol, " \t\n") {
		return "", fmt.Errorf("invalid NATIVE_ASSET value: %s, must not contain whitespace", symbol)
	}
	return symbol, nil
}

// GetEnvSignerAddress returns the signer address from environment variables, zero if unset
func GetEnvSignerAddress() (common.Address, error) {
	address := os.Getenv("SIGNER_ADDRESS")
	if address == "" {
		return common.Address{}, nil
	}

	// Validate Ethereum address format
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid SIGNER_ADDRESS value: %s, must be a valid Ethereum address", address)
	}
	return common.HexToAddress(address), nil
}

// GetEnvDefaultSlippage returns the default slippage tolerance in basis points
func GetEnvDefaultSlippage() (uint32, error) {
	slippage := os.Getenv("DEFAULT_SLIPPAGE")
	if slippage == "" {
		slippage = DefaultSlippage
	}

	bps, err := amount.ParseSlippage(slippage)
	if err != nil {
		return 0, fmt.Errorf("invalid DEFAULT_SLIPPAGE value: %s, must be a percentage between 0 and 100", slippage)
	}
	return bps, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	port, err := strconv.Atoi(metricsPort)
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid port number", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = DefaultLogLevel
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

// GetEnvCircuitBreakerEnabled returns whether the broker circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("BROKER_CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("BROKER_CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid BROKER_CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("BROKER_CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("BROKER_CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow*time.Second)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("BROKER_CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset*time.Second)
}

func getEnvBool(name string, fallback bool) (bool, error) {
	value := os.Getenv(name)
	switch value {
	case "":
		return fallback, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}

	// Validate duration format
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("invalid %s value: %s, must be a positive duration string", name, value)
	}
	return parsed, nil
}
