package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"CLEARNODE_URL", "SESSION_ID", "NATIVE_ASSET", "ASSETS_FILE", "DEFAULT_SLIPPAGE",
	"PRIVATE_KEY", "KEYSTORE_DIR", "KEYSTORE_PASSPHRASE", "CLEF_ENDPOINT", "SIGNER_ADDRESS",
	"METRICS_PORT", "METRICS_API_KEY", "LOG_LEVEL", "LOG_COLORING",
	"BROKER_CIRCUIT_BREAKER_ENABLED", "BROKER_CIRCUIT_BREAKER_THRESHOLD",
	"BROKER_CIRCUIT_BREAKER_WINDOW", "BROKER_CIRCUIT_BREAKER_RESET",
}

// clearEnv blanks every variable read by FromEnv for the duration of the test
func clearEnv(t *testing.T) {
	for _, name := range configEnv {
		t.Setenv(name, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultClearnodeURL, cfg.ClearnodeURL)
	assert.Equal(t, DefaultNativeAsset, cfg.NativeAsset)
	assert.Equal(t, uint32(500), cfg.DefaultSlippageBps)
	assert.Equal(t, DefaultMetricsPort, cfg.MetricsPort)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
	assert.True(t, cfg.LoggerConfig.Coloring)
	assert.True(t, cfg.CircuitBreaker.Enabled)
	assert.Equal(t, DefaultCircuitBreakerThreshold, cfg.CircuitBreaker.Threshold)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.WindowDuration)
	assert.Equal(t, 5*time.Minute, cfg.CircuitBreaker.ResetTimeout)
	assert.Empty(t, cfg.SessionID)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("CLEARNODE_URL", "wss://clearnode.example/ws")
	t.Setenv("SESSION_ID", "sess-1")
	t.Setenv("NATIVE_ASSET", "ETH")
	t.Setenv("DEFAULT_SLIPPAGE", "0.5")
	t.Setenv("SIGNER_ADDRESS", "0x55d398326f99059ff775485246999027b3197955")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_COLORING", "false")
	t.Setenv("BROKER_CIRCUIT_BREAKER_WINDOW", "30s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "wss://clearnode.example/ws", cfg.ClearnodeURL)
	assert.Equal(t, "sess-1", cfg.SessionID)
	assert.Equal(t, "ETH", cfg.NativeAsset)
	assert.Equal(t, uint32(50), cfg.DefaultSlippageBps)
	assert.Equal(t, common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), cfg.Signer.Address)
	assert.Equal(t, logger.DebugLevel, cfg.LoggerConfig.Level)
	assert.False(t, cfg.LoggerConfig.Coloring)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.WindowDuration)
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "endpoint", key: "CLEARNODE_URL", value: "not a url"},
		{name: "native asset", key: "NATIVE_ASSET", value: "B NB"},
		{name: "slippage", key: "DEFAULT_SLIPPAGE", value: "150"},
		{name: "signer address", key: "SIGNER_ADDRESS", value: "0x1234"},
		{name: "metrics port", key: "METRICS_PORT", value: "http"},
		{name: "metrics port range", key: "METRICS_PORT", value: "70000"},
		{name: "log level", key: "LOG_LEVEL", value: "verbose"},
		{name: "log coloring", key: "LOG_COLORING", value: "yes"},
		{name: "breaker enabled", key: "BROKER_CIRCUIT_BREAKER_ENABLED", value: "1"},
		{name: "breaker threshold", key: "BROKER_CIRCUIT_BREAKER_THRESHOLD", value: "0"},
		{name: "breaker window", key: "BROKER_CIRCUIT_BREAKER_WINDOW", value: "5"},
		{name: "breaker reset", key: "BROKER_CIRCUIT_BREAKER_RESET", value: "-1s"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)

			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}

func TestSignerSource(t *testing.T) {
	tests := []struct {
		name     string
		signer   SignerConfig
		expected string
		wantErr  bool
	}{
		{name: "none", signer: SignerConfig{}, wantErr: true},
		{name: "private key", signer: SignerConfig{PrivateKey: "0xabc"}, expected: SignerSourcePrivateKey},
		{name: "keystore", signer: SignerConfig{KeystoreDir: "/keys"}, expected: SignerSourceKeystore},
		{
			name:     "clef",
			signer:   SignerConfig{ClefEndpoint: "http://localhost:8550", Address: common.HexToAddress("0x01")},
			expected: SignerSourceClef,
		},
		{name: "clef without address", signer: SignerConfig{ClefEndpoint: "http://localhost:8550"}, wantErr: true},
		{name: "two sources", signer: SignerConfig{PrivateKey: "0xabc", KeystoreDir: "/keys"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Signer: tc.signer}
			source, err := cfg.SignerSource()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, source)
		})
	}
}
