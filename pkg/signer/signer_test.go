package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/speedrun-hq/shield/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var message = []byte("0123456789abcdef0123456789abcdef")

// recoverAddress checks the 27/28 form and recovers the personal-message signer
func recoverAddress(t *testing.T, data, sig []byte) common.Address {
	require.Len(t, sig, crypto.SignatureLength)
	v := sig[crypto.RecoveryIDOffset]
	require.True(t, v == 27 || v == 28, "unexpected V %d", v)

	raw := append([]byte(nil), sig...)
	raw[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(data), raw)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestKeySigner(t *testing.T) {
	key, address := testutil.GenerateKey(t)

	s, err := NewKeySignerFromHex(hexutil.Encode(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, address, s.Address())

	sig, err := s.SignText(context.Background(), message)
	require.NoError(t, err)
	assert.Equal(t, address, recoverAddress(t, message, sig))

	// without the prefix too
	s, err = NewKeySignerFromHex(common.Bytes2Hex(crypto.FromECDSA(key)))
	require.NoError(t, err)
	assert.Equal(t, address, s.Address())
}

func TestKeySignerErrors(t *testing.T) {
	_, err := NewKeySignerFromHex("")
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewKeySignerFromHex("0xnothex")
	assert.Error(t, err)

	_, err = NewKeySigner(nil)
	assert.ErrorIs(t, err, ErrNoCredential)

	key, _ := testutil.GenerateKey(t)
	s, err := NewKeySigner(key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.SignText(ctx, message)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKeystoreSigner(t *testing.T) {
	ks, account := testutil.NewTestKeystore(t)

	s, err := NewKeystoreSigner(ks, account.Address, StaticPassphrase(testutil.TestPassphrase))
	require.NoError(t, err)
	assert.Equal(t, account.Address, s.Address())

	sig, err := s.SignText(context.Background(), message)
	require.NoError(t, err)
	assert.Equal(t, account.Address, recoverAddress(t, message, sig))

	// a single account is picked when no address is given
	s, err = NewKeystoreSigner(ks, common.Address{}, StaticPassphrase(testutil.TestPassphrase))
	require.NoError(t, err)
	assert.Equal(t, account.Address, s.Address())
}

func TestKeystoreSignerErrors(t *testing.T) {
	ks, account := testutil.NewTestKeystore(t)

	_, err := NewKeystoreSigner(ks, testutil.GenerateAddress(), StaticPassphrase(testutil.TestPassphrase))
	assert.Error(t, err)

	_, err = NewKeystoreSigner(ks, account.Address, nil)
	assert.ErrorIs(t, err, ErrNoCredential)

	s, err := NewKeystoreSigner(ks, account.Address, StaticPassphrase("wrong"))
	require.NoError(t, err)
	_, err = s.SignText(context.Background(), message)
	assert.Error(t, err)

	prompt := errors.New("prompt closed")
	s, err = NewKeystoreSigner(ks, account.Address, func(context.Context, common.Address) (string, error) {
		return "", prompt
	})
	require.NoError(t, err)
	_, err = s.SignText(context.Background(), message)
	assert.ErrorIs(t, err, prompt)

	_, err = ks.NewAccount(testutil.TestPassphrase)
	require.NoError(t, err)
	_, err = NewKeystoreSigner(ks, common.Address{}, StaticPassphrase(testutil.TestPassphrase))
	assert.ErrorIs(t, err, ErrNoCredential, "ambiguous keystore")
}

// fakeClef serves the subset of the clef account API used by the external signer
type fakeClef struct {
	key    *ecdsa.PrivateKey
	reject bool
	delay  time.Duration
}

func (c *fakeClef) Version() (string, error) {
	return "6.1.0", nil
}

func (c *fakeClef) SignData(contentType string, addr common.MixedcaseAddress, data hexutil.Bytes) (hexutil.Bytes, error) {
	time.Sleep(c.delay)
	if c.reject {
		return nil, errors.New("request denied")
	}
	if contentType != accounts.MimetypeTextPlain {
		return nil, errors.New("unsupported content type")
	}
	if addr.Address() != crypto.PubkeyToAddress(c.key.PublicKey) {
		return nil, errors.New("unknown account")
	}
	sig, err := crypto.Sign(accounts.TextHash(data), c.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func startFakeClef(t *testing.T, clef *fakeClef) string {
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("account", clef))
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}

func TestClefSigner(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	endpoint := startFakeClef(t, &fakeClef{key: key})

	s, err := NewClefSigner(endpoint, address)
	require.NoError(t, err)
	assert.Equal(t, address, s.Address())

	sig, err := s.SignText(testutil.ContextWithTimeout(t), message)
	require.NoError(t, err)
	assert.Equal(t, address, recoverAddress(t, message, sig))
}

func TestClefSignerRejected(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	endpoint := startFakeClef(t, &fakeClef{key: key, reject: true})

	s, err := NewClefSigner(endpoint, address)
	require.NoError(t, err)

	_, err = s.SignText(testutil.ContextWithTimeout(t), message)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request denied")
}

func TestClefSignerAbandoned(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	endpoint := startFakeClef(t, &fakeClef{key: key, delay: 500 * time.Millisecond})

	s, err := NewClefSigner(endpoint, address)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.SignText(ctx, message)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClefSignerConfig(t *testing.T) {
	_, err := NewClefSigner("", testutil.GenerateAddress())
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewClefSigner("http://127.0.0.1:1", common.Address{})
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestNormalizeV(t *testing.T) {
	sig := make([]byte, crypto.SignatureLength)

	sig[crypto.RecoveryIDOffset] = 1
	out, err := normalizeV(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(28), out[crypto.RecoveryIDOffset])

	sig[crypto.RecoveryIDOffset] = 27
	out, err = normalizeV(sig)
	require.NoError(t, err)
	assert.Equal(t, byte(27), out[crypto.RecoveryIDOffset])

	sig[crypto.RecoveryIDOffset] = 5
	_, err = normalizeV(sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = normalizeV(sig[:10])
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
