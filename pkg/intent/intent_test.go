package intent

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validParams() Params {
	return Params{
		SessionID:    "sess-1",
		AssetIn:      "BNB",
		AssetOut:     "0xTOKEN",
		AmountIn:     testutil.CreateBigInt("100000000000000000"),
		MinAmountOut: testutil.CreateBigInt("100000000000000000000"),
		SlippageBps:  500,
		IssuedAtMs:   1700000000000,
		Nonce:        1,
	}
}

func signIntent(t *testing.T, key *ecdsa.PrivateKey, in TradeIntent) []byte {
	sig, err := crypto.Sign(accounts.TextHash(in.Digest().Bytes()), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return sig
}

func TestCanonicalEncoding(t *testing.T) {
	in, err := New(validParams())
	require.NoError(t, err)

	expected := `{"amountIn":"100000000000000000","assetIn":"BNB","assetOut":"0xTOKEN",` +
		`"issuedAtMs":1700000000000,"kind":"SWAP","minAmountOut":"100000000000000000000",` +
		`"nonce":1,"sessionId":"sess-1","slippageBps":500}`
	assert.Equal(t, expected, string(in.Encode()))
	assert.Equal(t, crypto.Keccak256Hash([]byte(expected)), in.Digest())

	// same fields, same bytes
	again, err := New(validParams())
	require.NoError(t, err)
	assert.Equal(t, in.Encode(), again.Encode())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{name: "empty session", mutate: func(p *Params) { p.SessionID = " " }},
		{name: "empty asset in", mutate: func(p *Params) { p.AssetIn = "" }},
		{name: "empty asset out", mutate: func(p *Params) { p.AssetOut = "" }},
		{name: "nil amount in", mutate: func(p *Params) { p.AmountIn = nil }},
		{name: "zero amount in", mutate: func(p *Params) { p.AmountIn = big.NewInt(0) }},
		{name: "negative min out", mutate: func(p *Params) { p.MinAmountOut = big.NewInt(-1) }},
		{name: "amount over 256 bits", mutate: func(p *Params) { p.AmountIn = new(big.Int).Lsh(big.NewInt(1), 256) }},
		{name: "slippage over 100%", mutate: func(p *Params) { p.SlippageBps = MaxSlippageBps + 1 }},
		{name: "zero nonce", mutate: func(p *Params) { p.Nonce = 0 }},
		{name: "missing timestamp", mutate: func(p *Params) { p.IssuedAtMs = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := New(p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIntent))
		})
	}

	p := validParams()
	p.MinAmountOut = big.NewInt(0)
	_, err := New(p)
	assert.NoError(t, err, "a zero floor is allowed")
}

func TestIntentIsImmutable(t *testing.T) {
	p := validParams()
	in, err := New(p)
	require.NoError(t, err)

	p.AmountIn.SetInt64(1)
	in.AmountIn().SetInt64(2)
	in.MinAmountOut().SetInt64(3)

	testutil.AssertBigIntEqual(t, testutil.CreateBigInt("100000000000000000"), in.AmountIn())
	testutil.AssertBigIntEqual(t, testutil.CreateBigInt("100000000000000000000"), in.MinAmountOut())
}

func TestDecode(t *testing.T) {
	in, err := New(validParams())
	require.NoError(t, err)

	decoded, err := Decode(in.Encode())
	require.NoError(t, err)
	assert.Equal(t, in.Encode(), decoded.Encode())
	assert.Equal(t, uint64(1), decoded.Nonce())

	_, err = Decode([]byte(`{"amountIn":"1","assetIn":"BNB","assetOut":"X","issuedAtMs":1,"kind":"SWAP","minAmountOut":"0","nonce":1,"sessionId":"s","slippageBps":0,"extra":true}`))
	assert.True(t, errors.Is(err, ErrInvalidIntent), "unknown fields are rejected")

	_, err = Decode([]byte(`{"amountIn":"1","assetIn":"BNB","assetOut":"X","issuedAtMs":1,"kind":"LIMIT","minAmountOut":"0","nonce":1,"sessionId":"s","slippageBps":0}`))
	assert.True(t, errors.Is(err, ErrInvalidIntent), "unknown kinds are rejected")

	_, err = Decode([]byte(`{"amountIn":"1.5","assetIn":"BNB","assetOut":"X","issuedAtMs":1,"kind":"SWAP","minAmountOut":"0","nonce":1,"sessionId":"s","slippageBps":0}`))
	assert.True(t, errors.Is(err, ErrInvalidIntent), "fractional amounts are rejected")
}

func TestSignedIntentVerify(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	in, err := New(validParams())
	require.NoError(t, err)

	signed, err := NewSigned(in, signIntent(t, key, in), address)
	require.NoError(t, err)
	require.NoError(t, signed.Verify())

	other := testutil.GenerateAddress()
	forged, err := NewSigned(in, signed.Signature(), other)
	require.NoError(t, err)
	assert.True(t, errors.Is(forged.Verify(), ErrSignerMismatch))
}

func TestSingleByteMutationInvalidates(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	in, err := New(validParams())
	require.NoError(t, err)
	sig := signIntent(t, key, in)

	encoded := in.Encode()
	require.NoError(t, VerifyEncoded(encoded, sig, address))

	for i := range encoded {
		mutated := append([]byte(nil), encoded...)
		mutated[i] ^= 0x01
		assert.Error(t, VerifyEncoded(mutated, sig, address), "mutation at byte %d verified", i)
	}
}

func TestRecoverSigner(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	in, err := New(validParams())
	require.NoError(t, err)
	sig := signIntent(t, key, in)

	recovered, err := RecoverSigner(in.Digest().Bytes(), sig)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)

	// raw 0/1 recovery ids are accepted too
	raw := append([]byte(nil), sig...)
	raw[crypto.RecoveryIDOffset] -= 27
	recovered, err = RecoverSigner(in.Digest().Bytes(), raw)
	require.NoError(t, err)
	assert.Equal(t, address, recovered)

	bad := append([]byte(nil), sig...)
	bad[crypto.RecoveryIDOffset] = 29
	_, err = RecoverSigner(in.Digest().Bytes(), bad)
	assert.True(t, errors.Is(err, ErrMalformedSignature))

	_, err = RecoverSigner(in.Digest().Bytes(), sig[:64])
	assert.True(t, errors.Is(err, ErrMalformedSignature))
}

func TestSignedIntentJSON(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	in, err := New(validParams())
	require.NoError(t, err)

	signed, err := NewSigned(in, signIntent(t, key, in), address)
	require.NoError(t, err)

	data, err := json.Marshal(signed)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"intent":`+string(in.Encode()))
	assert.Contains(t, string(data), `"signature":"`+signed.SignatureHex()+`"`)

	var decoded SignedIntent
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, address, decoded.Signer())
	assert.Equal(t, signed.Signature(), decoded.Signature())
	require.NoError(t, decoded.Verify())

	_, err = json.Marshal(SignedIntent{})
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"intent":`+string(in.Encode())+`,"signature":"0x00","signer":"`+address.Hex()+`"}`), &decoded)
	assert.True(t, errors.Is(err, ErrMalformedSignature))
}

func TestNewSignedCopiesSignature(t *testing.T) {
	key, address := testutil.GenerateKey(t)
	in, err := New(validParams())
	require.NoError(t, err)

	sig := signIntent(t, key, in)
	signed, err := NewSigned(in, sig, address)
	require.NoError(t, err)

	sig[0] ^= 0xff
	signed.Signature()[1] ^= 0xff
	assert.NoError(t, signed.Verify())

	_, err = NewSigned(TradeIntent{}, sig, address)
	assert.True(t, errors.Is(err, ErrInvalidIntent))
}
