// Package intent defines the off-chain trade intent and its signed envelope.
//
// A TradeIntent is immutable once constructed. Its canonical encoding is a compact JSON
// object with lexicographically ordered keys and no floating point values; the digest
// that gets signed is keccak256 over those bytes.
package intent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/amount"
)

// KindSwap is the only intent kind currently produced
const KindSwap = "SWAP"

// MaxSlippageBps bounds the informational slippage field to 100%
const MaxSlippageBps = amount.BpsDenominator

// ErrInvalidIntent is returned when intent fields violate the model
var ErrInvalidIntent = errors.New("invalid trade intent")

// Params carries the fields used to construct a TradeIntent
type Params struct {
	SessionID    string
	AssetIn      string
	AssetOut     string
	AmountIn     *big.Int
	MinAmountOut *big.Int
	SlippageBps  uint32
	IssuedAtMs   int64
	Nonce        uint64
}

// TradeIntent is a proposed off-chain swap
type TradeIntent struct {
	kind         string
	sessionID    string
	assetIn      string
	assetOut     string
	amountIn     *big.Int
	minAmountOut *big.Int
	slippageBps  uint32
	issuedAtMs   int64
	nonce        uint64
}

// wireIntent is the canonical encoding. Field order is the sort order of the JSON keys.
type wireIntent struct {
	AmountIn     string `json:"amountIn"`
	AssetIn      string `json:"assetIn"`
	AssetOut     string `json:"assetOut"`
	IssuedAtMs   int64  `json:"issuedAtMs"`
	Kind         string `json:"kind"`
	MinAmountOut string `json:"minAmountOut"`
	Nonce        uint64 `json:"nonce"`
	SessionID    string `json:"sessionId"`
	SlippageBps  uint32 `json:"slippageBps"`
}

// New validates p and builds a swap intent. Big integers are copied.
func New(p Params) (TradeIntent, error) {
	if err := validate(p); err != nil {
		return TradeIntent{}, err
	}
	return TradeIntent{
		kind:         KindSwap,
		sessionID:    p.SessionID,
		assetIn:      p.AssetIn,
		assetOut:     p.AssetOut,
		amountIn:     new(big.Int).Set(p.AmountIn),
		minAmountOut: new(big.Int).Set(p.MinAmountOut),
		slippageBps:  p.SlippageBps,
		issuedAtMs:   p.IssuedAtMs,
		nonce:        p.Nonce,
	}, nil
}

func validate(p Params) error {
	switch {
	case strings.TrimSpace(p.SessionID) == "":
		return errors.Wrap(ErrInvalidIntent, "session id is required")
	case strings.TrimSpace(p.AssetIn) == "":
		return errors.Wrap(ErrInvalidIntent, "input asset is required")
	case strings.TrimSpace(p.AssetOut) == "":
		return errors.Wrap(ErrInvalidIntent, "output asset is required")
	case p.AmountIn == nil || p.AmountIn.Sign() <= 0:
		return errors.Wrap(ErrInvalidIntent, "amount in must be greater than zero")
	case !amount.FitsUint256(p.AmountIn):
		return errors.Wrap(ErrInvalidIntent, "amount in does not fit in 256 bits")
	case p.MinAmountOut == nil || !amount.FitsUint256(p.MinAmountOut):
		return errors.Wrap(ErrInvalidIntent, "min amount out must be a non-negative 256-bit amount")
	case p.SlippageBps > MaxSlippageBps:
		return errors.Wrapf(ErrInvalidIntent, "slippage %d bps exceeds %d", p.SlippageBps, MaxSlippageBps)
	case p.Nonce == 0:
		return errors.Wrap(ErrInvalidIntent, "nonce must start at 1")
	case p.IssuedAtMs <= 0:
		return errors.Wrap(ErrInvalidIntent, "issued-at timestamp is required")
	}
	return nil
}

func (i TradeIntent) Kind() string        { return i.kind }
func (i TradeIntent) SessionID() string   { return i.sessionID }
func (i TradeIntent) AssetIn() string     { return i.assetIn }
func (i TradeIntent) AssetOut() string    { return i.assetOut }
func (i TradeIntent) SlippageBps() uint32 { return i.slippageBps }
func (i TradeIntent) IssuedAtMs() int64   { return i.issuedAtMs }
func (i TradeIntent) Nonce() uint64       { return i.nonce }

// AmountIn returns a copy of the exact input amount
func (i TradeIntent) AmountIn() *big.Int { return copyInt(i.amountIn) }

// MinAmountOut returns a copy of the output floor
func (i TradeIntent) MinAmountOut() *big.Int { return copyInt(i.minAmountOut) }

// IsZero reports whether the intent was never constructed
func (i TradeIntent) IsZero() bool { return i.kind == "" }

// Encode returns the canonical byte serialization
func (i TradeIntent) Encode() []byte {
	// marshalling a struct of strings and integers cannot fail
	out, _ := json.Marshal(i.wire())
	return out
}

// Digest is keccak256 over the canonical encoding
func (i TradeIntent) Digest() common.Hash {
	return crypto.Keccak256Hash(i.Encode())
}

func (i TradeIntent) String() string {
	return fmt.Sprintf("%s intent %s#%d %s %s->%s min %s", i.kind, i.sessionID, i.nonce,
		bigString(i.amountIn), i.assetIn, i.assetOut, bigString(i.minAmountOut))
}

// MarshalJSON emits the canonical encoding
func (i TradeIntent) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return nil, errors.Wrap(ErrInvalidIntent, "cannot encode an empty intent")
	}
	return i.Encode(), nil
}

// UnmarshalJSON decodes a canonical encoding and re-validates every field
func (i *TradeIntent) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*i = decoded
	return nil
}

// Decode parses the canonical encoding of an intent
func Decode(data []byte) (TradeIntent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wireIntent
	if err := dec.Decode(&w); err != nil {
		return TradeIntent{}, errors.Wrap(ErrInvalidIntent, err.Error())
	}
	if w.Kind != KindSwap {
		return TradeIntent{}, errors.Wrapf(ErrInvalidIntent, "unsupported kind %q", w.Kind)
	}

	amountIn, err := amount.ParseBaseUnits(w.AmountIn)
	if err != nil {
		return TradeIntent{}, errors.Wrap(ErrInvalidIntent, err.Error())
	}
	minAmountOut, err := amount.ParseBaseUnits(w.MinAmountOut)
	if err != nil {
		return TradeIntent{}, errors.Wrap(ErrInvalidIntent, err.Error())
	}

	return New(Params{
		SessionID:    w.SessionID,
		AssetIn:      w.AssetIn,
		AssetOut:     w.AssetOut,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		SlippageBps:  w.SlippageBps,
		IssuedAtMs:   w.IssuedAtMs,
		Nonce:        w.Nonce,
	})
}

func (i TradeIntent) wire() wireIntent {
	return wireIntent{
		AmountIn:     bigString(i.amountIn),
		AssetIn:      i.assetIn,
		AssetOut:     i.assetOut,
		IssuedAtMs:   i.issuedAtMs,
		Kind:         i.kind,
		MinAmountOut: bigString(i.minAmountOut),
		Nonce:        i.nonce,
		SessionID:    i.sessionID,
		SlippageBps:  i.slippageBps,
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
