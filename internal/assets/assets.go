package assets

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Asset is one tradable ERC-20 token: ticker symbol, contract address and
// decimal precision. Assets are parsed once at startup and never mutated.
type Asset struct {
	Symbol   string
	Address  common.Address
	Decimals uint8
}

// ParseSpec parses an asset list of the form
//
//	USDC=0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174:6,WETH=0x7ceB...:18
//
// Entries are comma-separated; each is SYMBOL=address:decimals. Symbols are
// upper-cased and must be unique. Order is preserved.
func ParseSpec(raw string) ([]Asset, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty asset spec")
	}

	entries := strings.Split(trimmed, ",")
	out := make([]Asset, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		symbolPart, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("asset entry %q: want SYMBOL=address:decimals", entry)
		}
		addrPart, decPart, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("asset entry %q: missing decimals", entry)
		}

		symbol := strings.ToUpper(strings.TrimSpace(symbolPart))
		if symbol == "" {
			return nil, fmt.Errorf("asset entry %q: empty symbol", entry)
		}
		if _, ok := seen[symbol]; ok {
			return nil, fmt.Errorf("duplicate asset symbol %q", symbol)
		}

		addrStr := strings.TrimSpace(addrPart)
		if !common.IsHexAddress(addrStr) {
			return nil, fmt.Errorf("asset %s: invalid address %q", symbol, addrStr)
		}

		dec, err := strconv.ParseUint(strings.TrimSpace(decPart), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("asset %s: invalid decimals %q: %w", symbol, decPart, err)
		}

		seen[symbol] = struct{}{}
		out = append(out, Asset{
			Symbol:   symbol,
			Address:  common.HexToAddress(addrStr),
			Decimals: uint8(dec),
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no assets found in %q", raw)
	}
	return out, nil
}

// BySymbol indexes assets by symbol.
func BySymbol(list []Asset) map[string]Asset {
	out := make(map[string]Asset, len(list))
	for _, a := range list {
		out[a.Symbol] = a
	}
	return out
}

// ParseUnits converts a decimal string like "1.5" into smallest-unit token
// amounts given the asset's precision, e.g. ("1.5", 6) -> 1500000. More
// fractional digits than the asset carries is an error, not a rounding.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("negative amount %q", s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return out, nil
}

// FormatUnits renders a smallest-unit amount as a decimal string, trimming
// trailing fractional zeros: (1500000, 6) -> "1.5".
func FormatUnits(x *big.Int, decimals uint8) string {
	if x == nil {
		return "0"
	}
	if decimals == 0 {
		return x.String()
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(x, scale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}

	fs := fmt.Sprintf("%0*s", int(decimals), frac.String())
	fs = strings.TrimRight(fs, "0")
	return whole.String() + "." + fs
}
