package trader

import (
	"math/big"
	"net/url"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/amount"
)

// MaxIdentifierLength bounds session ids and asset identifiers, in bytes
const MaxIdentifierLength = 128

var endpointSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ws":    true,
	"wss":   true,
}

// TradeRequest describes a swap of the native asset into AssetOut
type TradeRequest struct {
	// AssetOut is a token address or symbol
	AssetOut string
	// AmountIn is the exact input in base units, must be positive
	AmountIn *big.Int
	// MinAmountOut is the already resolved output floor in base units
	MinAmountOut *big.Int
	// SlippageBps is informational, between 0 and 10000
	SlippageBps uint32
}

// NewTradeRequest builds a request with slippage given in whole percent
func NewTradeRequest(assetOut string, amountIn, minAmountOut *big.Int, slippagePercent uint32) TradeRequest {
	return TradeRequest{
		AssetOut:     assetOut,
		AmountIn:     amountIn,
		MinAmountOut: minAmountOut,
		SlippageBps:  amount.PercentToBps(slippagePercent),
	}
}

// validateRequest checks r and returns the normalized output asset identifier
func validateRequest(r TradeRequest, assetIn string) (string, error) {
	assetOut, err := normalizeAsset(r.AssetOut)
	if err != nil {
		return "", err
	}
	if strings.EqualFold(assetOut, assetIn) {
		return "", errors.Errorf("cannot swap %s into itself", assetIn)
	}

	switch {
	case r.AmountIn == nil || r.AmountIn.Sign() <= 0:
		return "", errors.New("amount in must be greater than zero")
	case !amount.FitsUint256(r.AmountIn):
		return "", errors.New("amount in does not fit in 256 bits")
	case r.MinAmountOut == nil || r.MinAmountOut.Sign() < 0:
		return "", errors.New("min amount out must not be negative")
	case !amount.FitsUint256(r.MinAmountOut):
		return "", errors.New("min amount out does not fit in 256 bits")
	case r.SlippageBps > amount.BpsDenominator:
		return "", errors.Errorf("slippage %d bps is above 100%%", r.SlippageBps)
	}
	return assetOut, nil
}

// normalizeAsset checksums hex addresses and passes symbols through
func normalizeAsset(asset string) (string, error) {
	asset = strings.TrimSpace(asset)
	if err := validateIdentifier("asset out", asset); err != nil {
		return "", err
	}
	if common.IsHexAddress(asset) {
		return common.HexToAddress(asset).Hex(), nil
	}
	return asset, nil
}

func validateIdentifier(name, value string) error {
	if value == "" {
		return errors.Errorf("%s is required", name)
	}
	if len(value) > MaxIdentifierLength {
		return errors.Errorf("%s is longer than %d bytes", name, MaxIdentifierLength)
	}
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return errors.Errorf("%s must not contain whitespace or control characters", name)
		}
	}
	return nil
}

func validateEndpoint(endpoint string) (*url.URL, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid endpoint")
	}
	if !endpointSchemes[strings.ToLower(u.Scheme)] {
		return nil, errors.Errorf("endpoint scheme %q is not one of http, https, ws, wss", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.Errorf("endpoint %q has no host", endpoint)
	}
	return u, nil
}
