// Package signer provides the signing credentials an intent can be signed with.
//
// Every Signer produces EIP-191 personal-message signatures ("\x19Ethereum Signed
// Message:\n" + len + data) in [R || S || V] form with V in {27, 28}.
package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	// ErrNoCredential is returned when a signer is constructed without key material
	ErrNoCredential = errors.New("no signing credential")

	// ErrInvalidSignature is returned when a backend produces a signature of the wrong shape
	ErrInvalidSignature = errors.New("invalid signature from backend")
)

// Signer signs byte sequences with a held credential
type Signer interface {
	// Address returns the account the signer signs for
	Address() common.Address

	// SignText signs data as a personal message. Rejections by the backend are returned as errors.
	SignText(ctx context.Context, data []byte) ([]byte, error)
}

// normalizeV converts a 0/1 recovery id to the 27/28 form and checks the signature shape
func normalizeV(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, errors.Wrapf(ErrInvalidSignature, "expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	switch v := sig[crypto.RecoveryIDOffset]; v {
	case 0, 1:
		sig[crypto.RecoveryIDOffset] = v + 27
	case 27, 28:
	default:
		return nil, errors.Wrapf(ErrInvalidSignature, "unexpected recovery id %d", v)
	}
	return sig, nil
}
