package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/assets"
	"github.com/speedrun-hq/shield/pkg/circuitbreaker"
	"github.com/speedrun-hq/shield/pkg/config"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/signer"
	"golang.org/x/term"
)

// sessionFlags are shared by the commands that open a session
type sessionFlags struct {
	endpoint  string
	sessionID string
}

// apply overrides config values with flags that were set
func (f sessionFlags) apply(cfg *config.Config) {
	if f.endpoint != "" {
		cfg.ClearnodeURL = f.endpoint
	}
	if f.sessionID != "" {
		cfg.SessionID = f.sessionID
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)
}

func newBreaker(cfg *config.Config, log logger.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Enabled:      cfg.CircuitBreaker.Enabled,
		Threshold:    cfg.CircuitBreaker.Threshold,
		Window:       cfg.CircuitBreaker.WindowDuration,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, log)
}

func loadRegistry(cfg *config.Config) (*assets.Registry, error) {
	if cfg.AssetsFile == "" {
		return assets.Default(cfg.NativeAsset), nil
	}
	return assets.Load(cfg.AssetsFile, cfg.NativeAsset)
}

// buildSigner creates the signer for the single configured source
func buildSigner(cfg *config.Config, log logger.Logger) (signer.Signer, error) {
	source, err := cfg.SignerSource()
	if err != nil {
		return nil, err
	}

	switch source {
	case config.SignerSourcePrivateKey:
		log.Notice("Signing with a raw private key from the environment")
		return signer.NewKeySignerFromHex(cfg.Signer.PrivateKey)
	case config.SignerSourceKeystore:
		var passphrase signer.PassphraseFunc = promptPassphrase
		if cfg.Signer.Passphrase != "" {
			passphrase = signer.StaticPassphrase(cfg.Signer.Passphrase)
		}
		return signer.NewKeystoreSigner(signer.OpenKeystore(cfg.Signer.KeystoreDir), cfg.Signer.Address, passphrase)
	case config.SignerSourceClef:
		log.Info("Signing through clef at %s, approve requests in the clef console", cfg.Signer.ClefEndpoint)
		return signer.NewClefSigner(cfg.Signer.ClefEndpoint, cfg.Signer.Address)
	}
	return nil, errors.Errorf("unsupported signer source %s", source)
}

// promptPassphrase reads the keystore passphrase from the terminal without echo
func promptPassphrase(_ context.Context, account common.Address) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, set KEYSTORE_PASSPHRASE")
	}

	fmt.Fprintf(os.Stderr, "Passphrase for %s: ", account.Hex())
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read passphrase from terminal")
	}
	return string(passphrase), nil
}
