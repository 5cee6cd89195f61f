package ethutil

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account is one signing identity the bot operates: an ECDSA key plus the
// address derived from it.
type Account struct {
	Key     *ecdsa.PrivateKey
	Address common.Address
}

// ParsePrivateKeys parses a list of hex private keys from a single string.
//
// Supported separators: commas and whitespace (space/newline/tab), plus
// semicolons. A leading "0x" on any key is accepted. Duplicate keys (same
// derived address) are ignored, first occurrence wins.
//
// Returns (nil, nil) if raw is empty/whitespace.
func ParsePrivateKeys(raw string) ([]Account, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\n', '\r', '\t':
			return true
		default:
			return false
		}
	})

	out := make([]Account, 0, len(parts))
	seen := make(map[common.Address]struct{}, len(parts))
	for _, part := range parts {
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "0x"))
		if s == "" {
			continue
		}
		key, err := crypto.HexToECDSA(s)
		if err != nil {
			return nil, fmt.Errorf("invalid private key #%d: %w", len(out)+1, err)
		}

		addr := crypto.PubkeyToAddress(key.PublicKey)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, Account{Key: key, Address: addr})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no private keys found")
	}
	return out, nil
}

// ParseAddress validates and parses a single hex address.
func ParseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return common.Address{}, fmt.Errorf("empty address")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid hex address %q", s)
	}
	return common.HexToAddress(s), nil
}

// JoinHex renders addresses as a comma-separated hex list for log lines.
func JoinHex(addrs []common.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ",")
}
