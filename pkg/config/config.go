package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/speedrun-hq/shield/pkg/logger"
)

// Signer sources, exactly one must be configured to sign
const (
	SignerSourcePrivateKey = "private-key"
	SignerSourceKeystore   = "keystore"
	SignerSourceClef       = "clef"
)

// Config holds the configuration for the intent signer
type Config struct {
	ClearnodeURL       string
	SessionID          string
	NativeAsset        string
	AssetsFile         string
	DefaultSlippageBps uint32
	Signer             SignerConfig
	MetricsPort        string
	MetricsAPIKey      string
	CircuitBreaker     CircuitBreakerConfig
	LoggerConfig       LoggerConfig
}

// SignerConfig holds the signing credential settings
type SignerConfig struct {
	PrivateKey   string
	KeystoreDir  string
	Passphrase   string
	ClefEndpoint string
	Address      common.Address
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
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
	return FromEnv()
}

// FromEnv reads the configuration from the process environment only
func FromEnv() (*Config, error) {
	clearnodeURL, err := GetEnvClearnodeURL()
	if err != nil {
		return nil, err
	}

	nativeAsset, err := GetEnvNativeAsset()
	if err != nil {
		return nil, err
	}

	slippage, err := GetEnvDefaultSlippage()
	if err != nil {
		return nil, err
	}

	signerAddress, err := GetEnvSignerAddress()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
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

	return &Config{
		ClearnodeURL:       clearnodeURL,
		SessionID:          os.Getenv("SESSION_ID"),
		NativeAsset:        nativeAsset,
		AssetsFile:         os.Getenv("ASSETS_FILE"),
		DefaultSlippageBps: slippage,
		Signer: SignerConfig{
			PrivateKey:   os.Getenv("PRIVATE_KEY"),
			KeystoreDir:  os.Getenv("KEYSTORE_DIR"),
			Passphrase:   os.Getenv("KEYSTORE_PASSPHRASE"),
			ClefEndpoint: os.Getenv("CLEF_ENDPOINT"),
			Address:      signerAddress,
		},
		MetricsPort:   metricsPort,
		MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}, nil
}

// SignerSource validates the signer settings and returns which source is configured
func (c *Config) SignerSource() (string, error) {
	var sources []string
	if c.Signer.PrivateKey != "" {
		sources = append(sources, SignerSourcePrivateKey)
	}
	if c.Signer.KeystoreDir != "" {
		sources = append(sources, SignerSourceKeystore)
	}
	if c.Signer.ClefEndpoint != "" {
		sources = append(sources, SignerSourceClef)
	}

	switch len(sources) {
	case 0:
		return "", fmt.Errorf("one of PRIVATE_KEY, KEYSTORE_DIR or CLEF_ENDPOINT is required to sign")
	case 1:
	default:
		return "", fmt.Errorf("only one signer source may be configured, got %v", sources)
	}

	if sources[0] == SignerSourceClef && c.Signer.Address == (common.Address{}) {
		return "", fmt.Errorf("SIGNER_ADDRESS is required when signing with clef")
	}
	return sources[0], nil
}
