package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// PassphraseFunc supplies the passphrase for an encrypted key. It is called on every signature
// so the key never stays unlocked.
type PassphraseFunc func(ctx context.Context, account common.Address) (string, error)

// StaticPassphrase returns a PassphraseFunc that always yields passphrase
func StaticPassphrase(passphrase string) PassphraseFunc {
	return func(context.Context, common.Address) (string, error) {
		return passphrase, nil
	}
}

// KeystoreSigner signs with an account from an encrypted geth keystore directory
type KeystoreSigner struct {
	ks         *keystore.KeyStore
	account    accounts.Account
	passphrase PassphraseFunc
}

var _ Signer = (*KeystoreSigner)(nil)

// OpenKeystore opens the keystore in dir using the standard scrypt parameters
func OpenKeystore(dir string) *keystore.KeyStore {
	return keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)
}

// NewKeystoreSigner looks up address in ks. When address is the zero address and the keystore
// holds exactly one account, that account is used.
func NewKeystoreSigner(ks *keystore.KeyStore, address common.Address, passphrase PassphraseFunc) (*KeystoreSigner, error) {
	if ks == nil || passphrase == nil {
		return nil, ErrNoCredential
	}

	var account accounts.Account
	if address == (common.Address{}) {
		all := ks.Accounts()
		if len(all) != 1 {
			return nil, errors.Wrapf(ErrNoCredential, "keystore holds %d accounts, a signer address is required", len(all))
		}
		account = all[0]
	} else {
		found, err := ks.Find(accounts.Account{Address: address})
		if err != nil {
			return nil, errors.Wrapf(err, "account %s not in keystore", address.Hex())
		}
		account = found
	}

	return &KeystoreSigner{
		ks:         ks,
		account:    account,
		passphrase: passphrase,
	}, nil
}

func (s *KeystoreSigner) Address() common.Address { return s.account.Address }

func (s *KeystoreSigner) SignText(ctx context.Context, data []byte) ([]byte, error) {
	passphrase, err := s.passphrase(ctx, s.account.Address)
	if err != nil {
		return nil, errors.Wrap(err, "failed to obtain keystore passphrase")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sig, err := s.ks.SignHashWithPassphrase(s.account, passphrase, accounts.TextHash(data))
	if err != nil {
		return nil, errors.Wrap(err, "keystore refused to sign")
	}
	return normalizeV(sig)
}
