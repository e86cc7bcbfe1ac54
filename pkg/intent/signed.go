package intent

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// SignatureLength is the size of an [R || S || V] secp256k1 signature
const SignatureLength = crypto.SignatureLength

var (
	// ErrMalformedSignature is returned for signatures that cannot be parsed or recovered
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrSignerMismatch is returned when the recovered signer differs from the claimed one
	ErrSignerMismatch = errors.New("signature does not match signer")
)

// SignedIntent pairs an intent with a signature over its digest and the signer address
type SignedIntent struct {
	intent    TradeIntent
	signature []byte
	signer    common.Address
}

type wireSignedIntent struct {
	Intent    json.RawMessage `json:"intent"`
	Signature hexutil.Bytes   `json:"signature"`
	Signer    common.Address  `json:"signer"`
}

// NewSigned pairs an intent with its signature. The signature is copied and not verified;
// call Verify when the signature comes from an untrusted source.
func NewSigned(in TradeIntent, signature []byte, signer common.Address) (SignedIntent, error) {
	if in.IsZero() {
		return SignedIntent{}, errors.Wrap(ErrInvalidIntent, "cannot sign an empty intent")
	}
	if len(signature) != SignatureLength {
		return SignedIntent{}, errors.Wrapf(ErrMalformedSignature, "expected %d bytes, got %d", SignatureLength, len(signature))
	}
	return SignedIntent{
		intent:    in,
		signature: common.CopyBytes(signature),
		signer:    signer,
	}, nil
}

// Intent returns the signed intent
func (s SignedIntent) Intent() TradeIntent { return s.intent }

// Signature returns a copy of the signature bytes
func (s SignedIntent) Signature() []byte { return common.CopyBytes(s.signature) }

// SignatureHex returns the 0x-prefixed signature
func (s SignedIntent) SignatureHex() string { return hexutil.Encode(s.signature) }

// Signer returns the cached signer address
func (s SignedIntent) Signer() common.Address { return s.signer }

// Digest is the digest of the wrapped intent
func (s SignedIntent) Digest() common.Hash { return s.intent.Digest() }

// Verify recomputes the canonical encoding and checks it was signed by Signer()
func (s SignedIntent) Verify() error {
	return VerifyEncoded(s.intent.Encode(), s.signature, s.signer)
}

// VerifyEncoded checks that signature is a personal-message signature by signer over
// keccak256(encoded). It operates on raw bytes so altered serializations can be checked.
func VerifyEncoded(encoded []byte, signature []byte, signer common.Address) error {
	recovered, err := RecoverSigner(crypto.Keccak256(encoded), signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return errors.Wrapf(ErrSignerMismatch, "recovered %s, expected %s", recovered.Hex(), signer.Hex())
	}
	return nil
}

// RecoverSigner returns the address that produced a personal-message signature over digest.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverSigner(digest []byte, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errors.Wrapf(ErrMalformedSignature, "expected %d bytes, got %d", SignatureLength, len(signature))
	}

	sig := common.CopyBytes(signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, errors.Wrapf(ErrMalformedSignature, "invalid recovery id %d", signature[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(digest), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(ErrMalformedSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// MarshalJSON encodes the envelope as {"intent":{...},"signature":"0x..","signer":"0x.."}
func (s SignedIntent) MarshalJSON() ([]byte, error) {
	if s.intent.IsZero() {
		return nil, errors.Wrap(ErrInvalidIntent, "cannot encode an empty signed intent")
	}
	return json.Marshal(wireSignedIntent{
		Intent:    s.intent.Encode(),
		Signature: s.signature,
		Signer:    s.signer,
	})
}

// UnmarshalJSON decodes the envelope. The signature is not verified.
func (s *SignedIntent) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireSignedIntent
	if err := dec.Decode(&w); err != nil {
		return errors.Wrap(ErrInvalidIntent, err.Error())
	}
	in, err := Decode(w.Intent)
	if err != nil {
		return err
	}
	signed, err := NewSigned(in, w.Signature, w.Signer)
	if err != nil {
		return err
	}
	*s = signed
	return nil
}
