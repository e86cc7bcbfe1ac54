// Package assets resolves asset symbols and addresses to their decimals.
package assets

import (
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/amount"
	"gopkg.in/yaml.v3"
)

// Asset describes a tradable asset
type Asset struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address,omitempty"`
	Decimals int32  `yaml:"decimals"`
	Native   bool   `yaml:"native,omitempty"`
}

// Identifier is the value placed in an intent: the checksummed address for tokens, the symbol otherwise
func (a Asset) Identifier() string {
	if a.Address != "" {
		return common.HexToAddress(a.Address).Hex()
	}
	return a.Symbol
}

// file is the on-disk layout of an assets file
type file struct {
	Assets []Asset `yaml:"assets"`
}

// BSC stablecoins, both with 18 decimals on that chain
var bscDefaults = []Asset{
	{Symbol: "USDC", Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
	{Symbol: "USDT", Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
}

// Registry looks up assets by symbol or address, case-insensitively
type Registry struct {
	native Asset
	byKey  map[string]Asset
}

// Default returns a registry holding the native asset with 18 decimals. When the native asset is
// BNB the BSC stablecoins are included as well.
func Default(nativeSymbol string) *Registry {
	r := &Registry{byKey: make(map[string]Asset)}
	r.native = Asset{Symbol: nativeSymbol, Decimals: amount.DefaultDecimals, Native: true}
	r.add(r.native)

	if strings.EqualFold(nativeSymbol, "BNB") {
		for _, a := range bscDefaults {
			r.add(a)
		}
	}
	return r
}

// Load reads a YAML assets file on top of the default registry for nativeSymbol
func Load(path, nativeSymbol string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read assets file")
	}
	return Parse(data, nativeSymbol)
}

// Parse decodes YAML asset definitions on top of the default registry for nativeSymbol
func Parse(data []byte, nativeSymbol string) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse assets file")
	}

	r := Default(nativeSymbol)
	for i, a := range f.Assets {
		if err := validate(a); err != nil {
			return nil, errors.Wrapf(err, "asset %d (%s)", i, a.Symbol)
		}
		if a.Native {
			if !strings.EqualFold(a.Symbol, nativeSymbol) {
				return nil, errors.Errorf("asset %s is marked native but the native asset is %s", a.Symbol, nativeSymbol)
			}
			r.native = a
		}
		r.add(a)
	}
	return r, nil
}

func validate(a Asset) error {
	if strings.TrimSpace(a.Symbol) == "" {
		return errors.New("symbol is required")
	}
	if a.Address != "" && !common.IsHexAddress(a.Address) {
		return errors.Errorf("invalid address %s", a.Address)
	}
	if a.Native && a.Address != "" {
		return errors.New("the native asset has no token address")
	}
	if a.Decimals < 0 || a.Decimals > amount.MaxDecimals {
		return errors.Errorf("decimals must be between 0 and %d", amount.MaxDecimals)
	}
	return nil
}

func (r *Registry) add(a Asset) {
	r.byKey[strings.ToLower(a.Symbol)] = a
	if a.Address != "" {
		r.byKey[strings.ToLower(common.HexToAddress(a.Address).Hex())] = a
	}
}

// Native returns the native asset
func (r *Registry) Native() Asset { return r.native }

// Lookup finds an asset by symbol or address
func (r *Registry) Lookup(key string) (Asset, bool) {
	key = strings.TrimSpace(key)
	if common.IsHexAddress(key) {
		key = common.HexToAddress(key).Hex()
	}
	a, ok := r.byKey[strings.ToLower(key)]
	return a, ok
}

// Resolve returns the asset for key. Unknown hex addresses resolve to an unnamed token with
// fallbackDecimals; unknown symbols are an error.
func (r *Registry) Resolve(key string, fallbackDecimals int32) (Asset, error) {
	if a, ok := r.Lookup(key); ok {
		return a, nil
	}
	if common.IsHexAddress(key) {
		return Asset{Address: common.HexToAddress(key).Hex(), Decimals: fallbackDecimals}, nil
	}
	return Asset{}, errors.Errorf("unknown asset %q", key)
}

// Symbols returns the known symbols in sorted order
func (r *Registry) Symbols() []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, a := range r.byKey {
		if !seen[a.Symbol] {
			seen[a.Symbol] = true
			symbols = append(symbols, a.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}
