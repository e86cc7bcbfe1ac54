package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ClefSigner delegates signing to an external clef instance. Clef asks its operator to
// approve every request, so a signature may take as long as the operator does, and a
// rejected prompt comes back as an error.
type ClefSigner struct {
	backend *external.ExternalSigner
	account accounts.Account
}

var _ Signer = (*ClefSigner)(nil)

// NewClefSigner connects to clef at endpoint (http(s) URL or IPC path) and signs for address
func NewClefSigner(endpoint string, address common.Address) (*ClefSigner, error) {
	if endpoint == "" || address == (common.Address{}) {
		return nil, errors.Wrap(ErrNoCredential, "clef endpoint and signer address are required")
	}
	backend, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to clef at %s", endpoint)
	}
	return &ClefSigner{
		backend: backend,
		account: accounts.Account{Address: address},
	}, nil
}

func (s *ClefSigner) Address() common.Address { return s.account.Address }

func (s *ClefSigner) SignText(ctx context.Context, data []byte) ([]byte, error) {
	type result struct {
		sig []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		sig, err := s.backend.SignText(s.account, data)
		done <- result{sig: sig, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "clef signature abandoned")
	case r := <-done:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "clef refused to sign")
		}
		return normalizeV(r.sig)
	}
}
