package signer

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// KeySigner signs with an in-memory private key
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ Signer = (*KeySigner)(nil)

// NewKeySigner wraps an already parsed private key
func NewKeySigner(key *ecdsa.PrivateKey) (*KeySigner, error) {
	if key == nil {
		return nil, ErrNoCredential
	}
	return &KeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// NewKeySignerFromHex parses a hex private key, with or without the 0x prefix
func NewKeySignerFromHex(privateKeyHex string) (*KeySigner, error) {
	privateKeyHex = strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if privateKeyHex == "" {
		return nil, ErrNoCredential
	}
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse private key")
	}
	return NewKeySigner(key)
}

func (s *KeySigner) Address() common.Address { return s.address }

func (s *KeySigner) SignText(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(accounts.TextHash(data), s.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign with private key")
	}
	return normalizeV(sig)
}
